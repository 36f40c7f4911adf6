package model

import (
	"encoding/json"
	"time"
)

// OptimizationInput is the merged, validated record handed to the optimizer
// adapter. All series share the horizon's 192-point timestamp vector. It is
// built fresh per horizon and treated as immutable after validation.
type OptimizationInput struct {
	RunID       string
	Horizon     Horizon
	Series      map[FeedName]TimeSeries
	Renewable   *TimeSeries
	Battery     BatterySnapshot
	AssembledAt time.Time
}

// Degraded reports whether any feed carries fallback-sourced data.
func (in *OptimizationInput) Degraded() bool {
	for _, s := range in.Series {
		if s.Degraded() {
			return true
		}
	}
	return in.Renewable != nil && in.Renewable.Degraded()
}

// ProvenanceSummary maps each feed to the labels of its point ranges, so a
// caller can tell a fully-live answer from a degraded one.
func (in *OptimizationInput) ProvenanceSummary() map[FeedName][]string {
	out := make(map[FeedName][]string, len(in.Series))
	for name, s := range in.Series {
		labels := make([]string, 0, len(s.Provenance))
		for _, p := range s.Provenance {
			labels = append(labels, p.Label())
		}
		out[name] = labels
	}
	return out
}

// wireInput is the on-wire shape of the optimizer input contract: each feed
// rendered as the historical chronologically ordered record list.
type wireInput struct {
	RunID       string                    `json:"run_id"`
	Start       string                    `json:"start"`
	HorizonH    int                       `json:"time_horizon_hours"`
	Series      map[FeedName][]WireRecord `json:"series"`
	Renewable   []WireRecord              `json:"renewable_generation,omitempty"`
	Battery     BatterySnapshot           `json:"battery"`
	Degraded    bool                      `json:"degraded"`
	AssembledAt string                    `json:"assembled_at"`
}

// MarshalJSON emits the byte-compatible optimizer input document. Feed wire
// keys follow the feed definitions for the battery's bidding zone.
func (in *OptimizationInput) MarshalJSON() ([]byte, error) {
	keys := make(map[FeedName]string)
	for _, f := range RequiredFeeds(in.Battery.Zone) {
		keys[f.Name] = f.WireKey
	}
	w := wireInput{
		RunID:       in.RunID,
		Start:       in.Horizon.Start.UTC().Format(WireTimeLayout),
		HorizonH:    int(in.Horizon.Length / time.Hour),
		Series:      make(map[FeedName][]WireRecord, len(in.Series)),
		Battery:     in.Battery,
		Degraded:    in.Degraded(),
		AssembledAt: in.AssembledAt.UTC().Format(WireTimeLayout),
	}
	for name, s := range in.Series {
		key := keys[name]
		if key == "" {
			key = string(name)
		}
		w.Series[name] = s.WireRecords(key)
	}
	if in.Renewable != nil {
		w.Renewable = in.Renewable.WireRecords("generation_kw")
	}
	return json.Marshal(w)
}
