// Package resample converts raw provider series onto the canonical 15-minute
// grid. It is purely a grid-alignment operation: values keep their unit and
// sign.
package resample

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gridkey/horizon/core/model"
)

// GapError reports that interpolation would have to bridge a span larger
// than the feed allows, or extrapolate beyond the last known sample.
type GapError struct {
	Feed model.FeedName
	From time.Time
	To   time.Time
}

func (e *GapError) Error() string {
	return fmt.Sprintf("resampling gap in %s between %s and %s",
		e.Feed, e.From.Format(time.RFC3339), e.To.Format(time.RFC3339))
}

// ToCanonical aligns a raw series onto the canonical grid covering window.
//
// Coarser-than-canonical sources are upsampled per the feed kind: block feeds
// by step-hold, continuous feeds by linear interpolation with no
// extrapolation. Finer-than-canonical sources are downsampled by arithmetic
// mean over each canonical sub-interval. A series already on the canonical
// grid passes through untouched apart from clipping to the window.
func ToCanonical(raw model.TimeSeries, feed model.Feed, window model.Window) (model.TimeSeries, error) {
	if len(raw.Points) == 0 {
		return model.TimeSeries{}, &GapError{Feed: feed.Name, From: window.Start, To: window.End}
	}
	out := model.TimeSeries{
		Feed:       feed.Name,
		Unit:       raw.Unit,
		Resolution: model.CanonicalResolution,
		Provenance: raw.Provenance,
	}
	var err error
	switch {
	case raw.Resolution == model.CanonicalResolution:
		out.Points = raw.Slice(window).Points
		if len(out.Points) != window.Points(model.CanonicalResolution) {
			return model.TimeSeries{}, &GapError{Feed: feed.Name, From: window.Start, To: window.End}
		}
	case raw.Resolution > model.CanonicalResolution:
		if feed.Kind == model.KindBlock {
			out.Points, err = stepHold(raw, feed, window)
		} else {
			out.Points, err = interpolate(raw, feed, window)
		}
	default:
		out.Points, err = meanDownsample(raw, feed, window)
	}
	if err != nil {
		return model.TimeSeries{}, err
	}
	return out, nil
}

// stepHold repeats each native block value across every canonical
// sub-interval it covers: a 4-hour block expands to sixteen identical
// 15-minute entries.
func stepHold(raw model.TimeSeries, feed model.Feed, window model.Window) ([]model.Point, error) {
	grid := canonicalGrid(window)
	out := make([]model.Point, 0, len(grid))
	j := 0
	for _, t := range grid {
		for j+1 < len(raw.Points) && !raw.Points[j+1].Time.After(t) {
			j++
		}
		block := model.Window{Start: raw.Points[j].Time, End: raw.Points[j].Time.Add(raw.Resolution)}
		if !block.Contains(t) {
			return nil, &GapError{Feed: feed.Name, From: block.End, To: t.Add(model.CanonicalResolution)}
		}
		out = append(out, model.Point{Time: t, Value: raw.Points[j].Value})
	}
	return out, nil
}

// interpolate fills the canonical grid by linear interpolation between
// consecutive native samples. Grid points outside [first, last] native
// sample are a gap: extrapolation is disallowed.
func interpolate(raw model.TimeSeries, feed model.Feed, window model.Window) ([]model.Point, error) {
	maxGap := feed.MaxGap
	if maxGap <= 0 {
		maxGap = raw.Resolution
	}
	grid := canonicalGrid(window)
	out := make([]model.Point, 0, len(grid))
	j := 0
	for _, t := range grid {
		for j+1 < len(raw.Points) && raw.Points[j+1].Time.Before(t) {
			j++
		}
		switch {
		case t.Before(raw.Points[0].Time):
			return nil, &GapError{Feed: feed.Name, From: t, To: raw.Points[0].Time}
		case t.Equal(raw.Points[j].Time):
			out = append(out, model.Point{Time: t, Value: raw.Points[j].Value})
		case j+1 >= len(raw.Points):
			return nil, &GapError{Feed: feed.Name, From: raw.Points[j].Time, To: t}
		default:
			a, b := raw.Points[j], raw.Points[j+1]
			if span := b.Time.Sub(a.Time); span > maxGap {
				return nil, &GapError{Feed: feed.Name, From: a.Time, To: b.Time}
			}
			frac := float64(t.Sub(a.Time)) / float64(b.Time.Sub(a.Time))
			out = append(out, model.Point{Time: t, Value: a.Value + (b.Value-a.Value)*frac})
		}
	}
	return out, nil
}

// meanDownsample aggregates finer-than-canonical samples by arithmetic mean
// over each canonical sub-interval.
func meanDownsample(raw model.TimeSeries, feed model.Feed, window model.Window) ([]model.Point, error) {
	grid := canonicalGrid(window)
	out := make([]model.Point, 0, len(grid))
	j := 0
	for _, t := range grid {
		sub := model.Window{Start: t, End: t.Add(model.CanonicalResolution)}
		var vals []float64
		for j < len(raw.Points) && raw.Points[j].Time.Before(sub.Start) {
			j++
		}
		for k := j; k < len(raw.Points) && raw.Points[k].Time.Before(sub.End); k++ {
			vals = append(vals, raw.Points[k].Value)
		}
		if len(vals) == 0 {
			return nil, &GapError{Feed: feed.Name, From: sub.Start, To: sub.End}
		}
		out = append(out, model.Point{Time: t, Value: stat.Mean(vals, nil)})
	}
	return out, nil
}

// Aggregate re-aggregates a canonical series back to a coarser resolution by
// arithmetic mean. For block feeds this recovers the original block values
// exactly.
func Aggregate(s model.TimeSeries, resolution time.Duration) (model.TimeSeries, error) {
	if resolution < s.Resolution || resolution%s.Resolution != 0 {
		return model.TimeSeries{}, fmt.Errorf("cannot aggregate %s series to %s", s.Resolution, resolution)
	}
	out := model.TimeSeries{Feed: s.Feed, Unit: s.Unit, Resolution: resolution, Provenance: s.Provenance}
	step := int(resolution / s.Resolution)
	for i := 0; i+step <= len(s.Points); i += step {
		vals := make([]float64, step)
		for k := 0; k < step; k++ {
			vals[k] = s.Points[i+k].Value
		}
		out.Points = append(out.Points, model.Point{Time: s.Points[i].Time, Value: stat.Mean(vals, nil)})
	}
	return out, nil
}

func canonicalGrid(w model.Window) []time.Time {
	n := w.Points(model.CanonicalResolution)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = w.Start.Add(time.Duration(i) * model.CanonicalResolution)
	}
	return out
}
