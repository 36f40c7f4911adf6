// Package validate is the last gate before an assembled record is handed to
// the optimizer adapter.
package validate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gridkey/horizon/core/model"
)

// Issue is one invariant violation found in an OptimizationInput.
type Issue struct {
	Feed   model.FeedName
	Reason string
}

func (i Issue) String() string {
	if i.Feed == "" {
		return i.Reason
	}
	return fmt.Sprintf("%s: %s", i.Feed, i.Reason)
}

// Error aggregates every violation so the caller sees the full picture in
// one pass, not the first failure of many.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator enforces the optimizer's input invariants: schema completeness,
// grid alignment, value ranges and provenance coverage.
type Validator struct {
	feeds []model.Feed
}

// New builds a validator for the required feed schema.
func New(feeds []model.Feed) *Validator {
	return &Validator{feeds: feeds}
}

// Validate returns nil only if the input satisfies every invariant. It never
// mutates the input.
func (v *Validator) Validate(in *model.OptimizationInput) error {
	var issues []Issue
	grid := in.Horizon.Grid()

	for _, feed := range v.feeds {
		s, ok := in.Series[feed.Name]
		if !ok {
			issues = append(issues, Issue{Feed: feed.Name, Reason: "required feed missing"})
			continue
		}
		issues = append(issues, checkSeries(feed, &s, grid)...)
	}
	if in.Renewable != nil {
		gen := model.Feed{Name: in.Renewable.Feed, Min: 0, Max: math.Inf(1)}
		issues = append(issues, checkSeries(gen, in.Renewable, grid)...)
	}
	if err := in.Battery.Validate(); err != nil {
		issues = append(issues, Issue{Reason: err.Error()})
	}
	if len(issues) > 0 {
		return &Error{Issues: issues}
	}
	return nil
}

func checkSeries(feed model.Feed, s *model.TimeSeries, grid []time.Time) []Issue {
	var issues []Issue
	if len(s.Points) != len(grid) {
		issues = append(issues, Issue{Feed: feed.Name,
			Reason: fmt.Sprintf("has %d points, want %d", len(s.Points), len(grid))})
		return issues
	}
	if s.Resolution != model.CanonicalResolution {
		issues = append(issues, Issue{Feed: feed.Name,
			Reason: fmt.Sprintf("resolution %s, want %s", s.Resolution, model.CanonicalResolution)})
	}
	for i, p := range s.Points {
		if !p.Time.Equal(grid[i]) {
			issues = append(issues, Issue{Feed: feed.Name,
				Reason: fmt.Sprintf("timestamp %s at index %d off the horizon grid", p.Time.Format(time.RFC3339), i)})
			break
		}
	}
	issues = append(issues, checkRange(feed, s)...)
	issues = append(issues, checkProvenance(feed, s, grid)...)
	return issues
}

func checkRange(feed model.Feed, s *model.TimeSeries) []Issue {
	if feed.Min == 0 && feed.Max == 0 {
		return nil
	}
	for i, p := range s.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return []Issue{{Feed: feed.Name, Reason: fmt.Sprintf("non-finite value at index %d", i)}}
		}
		if p.Value < feed.Min || p.Value > feed.Max {
			return []Issue{{Feed: feed.Name,
				Reason: fmt.Sprintf("value %.4f at index %d outside [%.1f, %.1f]", p.Value, i, feed.Min, feed.Max)}}
		}
	}
	return nil
}

// checkProvenance requires every point of the series to fall inside some
// recorded provenance range, so degraded data can always be distinguished
// from live data downstream.
func checkProvenance(feed model.Feed, s *model.TimeSeries, grid []time.Time) []Issue {
	if len(s.Provenance) == 0 {
		return []Issue{{Feed: feed.Name, Reason: "no provenance recorded"}}
	}
	for _, t := range grid {
		covered := false
		for _, p := range s.Provenance {
			if p.Window.Contains(t) {
				covered = true
				break
			}
		}
		if !covered {
			return []Issue{{Feed: feed.Name,
				Reason: fmt.Sprintf("no provenance for %s", t.Format(time.RFC3339))}}
		}
	}
	return nil
}
