package resample

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gridkey/horizon/core/model"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func rawSeries(feed model.FeedName, start time.Time, res time.Duration, values []float64) model.TimeSeries {
	s := model.TimeSeries{Feed: feed, Resolution: res}
	for i, v := range values {
		s.Points = append(s.Points, model.Point{Time: start.Add(time.Duration(i) * res), Value: v})
	}
	return s
}

func fcrFeed() model.Feed {
	for _, f := range model.MarketFeeds("DE_LU") {
		if f.Name == model.FeedFCR {
			return f
		}
	}
	panic("fcr feed missing")
}

func dayAheadFeed() model.Feed {
	for _, f := range model.MarketFeeds("DE_LU") {
		if f.Name == model.FeedDayAhead {
			return f
		}
	}
	panic("day-ahead feed missing")
}

func weatherFeed(name model.FeedName) model.Feed {
	for _, f := range model.WeatherFeeds() {
		if f.Name == name {
			return f
		}
	}
	panic("weather feed missing")
}

func TestToCanonicalStepHold(t *testing.T) {
	feed := fcrFeed()
	raw := rawSeries(model.FeedFCR, day, 4*time.Hour, []float64{104.4, 98.2, 120.0})
	window := model.Window{Start: day, End: day.Add(12 * time.Hour)}

	got, err := ToCanonical(raw, feed, window)
	if err != nil {
		t.Fatalf("step hold: %v", err)
	}
	if got.Len() != 48 {
		t.Fatalf("points = %d, want 48", got.Len())
	}
	if got.Resolution != model.CanonicalResolution {
		t.Fatalf("resolution = %s", got.Resolution)
	}
	// Every canonical point inside a block carries the block's value.
	for i := 0; i < 16; i++ {
		if got.Points[i].Value != 104.4 {
			t.Fatalf("point %d = %v, want 104.4", i, got.Points[i].Value)
		}
	}
	if got.Points[16].Value != 98.2 || got.Points[47].Value != 120.0 {
		t.Fatalf("block boundaries wrong: %v %v", got.Points[16].Value, got.Points[47].Value)
	}
}

func TestToCanonicalStepHoldGap(t *testing.T) {
	feed := fcrFeed()
	raw := model.TimeSeries{Feed: model.FeedFCR, Resolution: 4 * time.Hour, Points: []model.Point{
		{Time: day, Value: 104.4},
		{Time: day.Add(8 * time.Hour), Value: 98.2}, // 04:00-08:00 block missing
	}}
	window := model.Window{Start: day, End: day.Add(12 * time.Hour)}

	_, err := ToCanonical(raw, feed, window)
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("want GapError, got %v", err)
	}
	if gap.Feed != model.FeedFCR {
		t.Fatalf("gap feed = %s", gap.Feed)
	}
}

func TestToCanonicalInterpolate(t *testing.T) {
	feed := weatherFeed(model.FeedTemperature)
	raw := rawSeries(model.FeedTemperature, day, 3*time.Hour, []float64{0, 12})
	window := model.Window{Start: day, End: day.Add(3 * time.Hour)}

	got, err := ToCanonical(raw, feed, window)
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	if got.Len() != 12 {
		t.Fatalf("points = %d, want 12", got.Len())
	}
	// Linear ramp from 0 to 12 over 12 canonical steps.
	for i, p := range got.Points {
		want := float64(i)
		if math.Abs(p.Value-want) > 1e-9 {
			t.Fatalf("point %d = %v, want %v", i, p.Value, want)
		}
	}
}

func TestToCanonicalInterpolateNoExtrapolation(t *testing.T) {
	feed := weatherFeed(model.FeedTemperature)
	raw := rawSeries(model.FeedTemperature, day, 3*time.Hour, []float64{0, 12})
	// Window reaches past the last native sample.
	window := model.Window{Start: day, End: day.Add(6 * time.Hour)}

	_, err := ToCanonical(raw, feed, window)
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("want GapError, got %v", err)
	}
}

func TestToCanonicalInterpolateMaxGap(t *testing.T) {
	feed := weatherFeed(model.FeedTemperature) // MaxGap 6h
	raw := model.TimeSeries{Feed: model.FeedTemperature, Resolution: 3 * time.Hour, Points: []model.Point{
		{Time: day, Value: 0},
		{Time: day.Add(9 * time.Hour), Value: 12}, // 9h span exceeds MaxGap
	}}
	window := model.Window{Start: day, End: day.Add(9 * time.Hour)}

	_, err := ToCanonical(raw, feed, window)
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("want GapError, got %v", err)
	}
}

func TestToCanonicalMeanDownsample(t *testing.T) {
	feed := dayAheadFeed()
	raw := rawSeries(model.FeedDayAhead, day, 5*time.Minute, []float64{10, 20, 30, 40, 50, 60})
	window := model.Window{Start: day, End: day.Add(30 * time.Minute)}

	got, err := ToCanonical(raw, feed, window)
	if err != nil {
		t.Fatalf("downsample: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("points = %d, want 2", got.Len())
	}
	if got.Points[0].Value != 20 || got.Points[1].Value != 50 {
		t.Fatalf("means = %v %v, want 20 50", got.Points[0].Value, got.Points[1].Value)
	}
}

func TestToCanonicalPassthrough(t *testing.T) {
	feed := dayAheadFeed()
	raw := rawSeries(model.FeedDayAhead, day, model.CanonicalResolution, []float64{39.91, 41.2, 40.05, 38.8})
	raw.MarkProvenance("energy-charts", model.ProvenanceLive)
	window := model.Window{Start: day, End: day.Add(time.Hour)}

	got, err := ToCanonical(raw, feed, window)
	if err != nil {
		t.Fatalf("passthrough: %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("points = %d, want 4", got.Len())
	}
	for i := range got.Points {
		if got.Points[i].Value != raw.Points[i].Value {
			t.Fatalf("point %d changed: %v", i, got.Points[i].Value)
		}
	}
	if len(got.Provenance) != 1 || got.Provenance[0].Source != "energy-charts" {
		t.Fatalf("provenance lost: %+v", got.Provenance)
	}
}

func TestToCanonicalPassthroughIncomplete(t *testing.T) {
	feed := dayAheadFeed()
	raw := rawSeries(model.FeedDayAhead, day, model.CanonicalResolution, []float64{39.91, 41.2})
	window := model.Window{Start: day, End: day.Add(time.Hour)}

	_, err := ToCanonical(raw, feed, window)
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("want GapError for incomplete coverage, got %v", err)
	}
}

func TestToCanonicalEmpty(t *testing.T) {
	feed := dayAheadFeed()
	window := model.Window{Start: day, End: day.Add(time.Hour)}
	_, err := ToCanonical(model.TimeSeries{}, feed, window)
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("want GapError for empty series, got %v", err)
	}
}

// A step-held block series re-aggregated to the native resolution must
// recover the original block values exactly.
func TestAggregateRoundTrip(t *testing.T) {
	feed := fcrFeed()
	raw := rawSeries(model.FeedFCR, day, 4*time.Hour, []float64{104.4, 98.2, 120.0})
	window := model.Window{Start: day, End: day.Add(12 * time.Hour)}

	canonical, err := ToCanonical(raw, feed, window)
	if err != nil {
		t.Fatalf("to canonical: %v", err)
	}
	back, err := Aggregate(canonical, 4*time.Hour)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if back.Len() != 3 {
		t.Fatalf("aggregated points = %d, want 3", back.Len())
	}
	for i, p := range back.Points {
		if math.Abs(p.Value-raw.Points[i].Value) > 1e-9 {
			t.Fatalf("block %d = %v, want %v", i, p.Value, raw.Points[i].Value)
		}
		if !p.Time.Equal(raw.Points[i].Time) {
			t.Fatalf("block %d time = %s", i, p.Time)
		}
	}
}

func TestAggregateRejectsNonDivisor(t *testing.T) {
	s := rawSeries(model.FeedDayAhead, day, model.CanonicalResolution, []float64{1, 2, 3, 4})
	if _, err := Aggregate(s, 20*time.Minute); err == nil {
		t.Fatalf("non-divisor resolution accepted")
	}
	if _, err := Aggregate(s, 5*time.Minute); err == nil {
		t.Fatalf("finer resolution accepted")
	}
}
