package model

import (
	"fmt"
	"time"
)

// WireTimeLayout is the timestamp layout of the emitted JSON records. The
// fixed millisecond suffix matches the historical format the optimizer was
// built against.
const WireTimeLayout = "2006-01-02T15:04:05.000"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Points reports how many samples at the given resolution the window spans.
func (w Window) Points(resolution time.Duration) int {
	if resolution <= 0 {
		return 0
	}
	return int(w.Duration() / resolution)
}

// ProvenanceMode classifies how a point range was obtained.
type ProvenanceMode int

const (
	// ProvenanceLive marks data fetched from the feed's primary source.
	ProvenanceLive ProvenanceMode = iota
	// ProvenanceCached marks data served from the series cache.
	ProvenanceCached
	// ProvenanceFallback marks data substituted from a lower-priority
	// source after the primary failed or had no coverage.
	ProvenanceFallback
)

func (m ProvenanceMode) String() string {
	switch m {
	case ProvenanceLive:
		return "live"
	case ProvenanceCached:
		return "cache"
	default:
		return "fallback"
	}
}

// Provenance records which source supplied a contiguous point range.
type Provenance struct {
	Source string
	Mode   ProvenanceMode
	Window Window
}

// Label renders the provenance the way downstream consumers display it,
// e.g. "live:energy-charts" or "fallback:historical".
func (p Provenance) Label() string {
	return p.Mode.String() + ":" + p.Source
}

// Degraded reports whether the range was not supplied by the feed's primary
// source.
func (p Provenance) Degraded() bool { return p.Mode == ProvenanceFallback }

// Point is one sample of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// TimeSeries is an ordered sequence of samples for one feed, tagged with the
// resolution it is sampled at, its unit, and the provenance of its ranges.
type TimeSeries struct {
	Feed       FeedName
	Unit       string
	Resolution time.Duration
	Points     []Point
	Provenance []Provenance
}

// Len returns the number of samples.
func (s *TimeSeries) Len() int { return len(s.Points) }

// Values returns the sample values in order.
func (s *TimeSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Timestamps returns the sample times in order.
func (s *TimeSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

// Window returns the half-open window the series covers, assuming it
// satisfies Check.
func (s *TimeSeries) Window() Window {
	if len(s.Points) == 0 {
		return Window{}
	}
	return Window{Start: s.Points[0].Time, End: s.Points[len(s.Points)-1].Time.Add(s.Resolution)}
}

// Check verifies the series invariant: timestamps strictly increasing and
// evenly spaced at the declared resolution.
func (s *TimeSeries) Check() error {
	if s.Resolution <= 0 {
		return fmt.Errorf("series %s: resolution must be positive", s.Feed)
	}
	for i := 1; i < len(s.Points); i++ {
		gap := s.Points[i].Time.Sub(s.Points[i-1].Time)
		if gap <= 0 {
			return fmt.Errorf("series %s: timestamps not strictly increasing at index %d", s.Feed, i)
		}
		if gap != s.Resolution {
			return fmt.Errorf("series %s: spacing %s at index %d, want %s", s.Feed, gap, i, s.Resolution)
		}
	}
	return nil
}

// Degraded reports whether any point range came from a fallback source.
func (s *TimeSeries) Degraded() bool {
	for _, p := range s.Provenance {
		if p.Degraded() {
			return true
		}
	}
	return false
}

// Slice returns the sub-series covering the given window. All points outside
// the window are dropped; provenance ranges are clipped accordingly.
func (s *TimeSeries) Slice(w Window) TimeSeries {
	out := TimeSeries{Feed: s.Feed, Unit: s.Unit, Resolution: s.Resolution}
	for _, p := range s.Points {
		if w.Contains(p.Time) {
			out.Points = append(out.Points, p)
		}
	}
	for _, pr := range s.Provenance {
		if pr.Window.End.After(w.Start) && pr.Window.Start.Before(w.End) {
			clipped := pr
			if clipped.Window.Start.Before(w.Start) {
				clipped.Window.Start = w.Start
			}
			if clipped.Window.End.After(w.End) {
				clipped.Window.End = w.End
			}
			out.Provenance = append(out.Provenance, clipped)
		}
	}
	return out
}

// Concat appends other to s. The two series must be contiguous: other must
// start exactly one resolution step after s ends.
func (s *TimeSeries) Concat(other TimeSeries) error {
	if other.Feed != s.Feed || other.Resolution != s.Resolution {
		return fmt.Errorf("series %s: cannot concat mismatched series %s", s.Feed, other.Feed)
	}
	if len(s.Points) > 0 && len(other.Points) > 0 {
		want := s.Points[len(s.Points)-1].Time.Add(s.Resolution)
		if !other.Points[0].Time.Equal(want) {
			return fmt.Errorf("series %s: concat gap, next segment starts %s want %s",
				s.Feed, other.Points[0].Time.Format(time.RFC3339), want.Format(time.RFC3339))
		}
	}
	s.Points = append(s.Points, other.Points...)
	s.Provenance = append(s.Provenance, other.Provenance...)
	return nil
}

// MarkProvenance replaces the provenance of the whole series with a single
// range covering it.
func (s *TimeSeries) MarkProvenance(source string, mode ProvenanceMode) {
	s.Provenance = []Provenance{{Source: source, Mode: mode, Window: s.Window()}}
}

// WireRecords renders the series in the historical JSON record shape:
// one object per timestamp carrying the feed's wire key.
func (s *TimeSeries) WireRecords(wireKey string) []WireRecord {
	out := make([]WireRecord, len(s.Points))
	for i, p := range s.Points {
		out[i] = WireRecord{
			Timestamp: p.Time.UTC().Format(WireTimeLayout),
			Key:       wireKey,
			Value:     p.Value,
		}
	}
	return out
}

// WireRecord is one element of the emitted series format, serialized as
// {"timestamp": "...", "<key>": <value>}.
type WireRecord struct {
	Timestamp string
	Key       string
	Value     float64
}

// MarshalJSON renders the record with the dynamic value key.
func (r WireRecord) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"timestamp":%q,%q:%s}`, r.Timestamp, r.Key, formatWireValue(r.Value))), nil
}

func formatWireValue(v float64) string {
	// Round to 4 decimals like the historical exports.
	return trimTrailingZeros(fmt.Sprintf("%.4f", v))
}

func trimTrailingZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
