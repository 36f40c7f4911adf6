package generation

import (
	"math"
	"testing"
	"time"

	"github.com/gridkey/horizon/core/model"
)

const berlinLat = 52.52

func TestIrradianceZeroAtNight(t *testing.T) {
	midnight := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	if got := Irradiance(berlinLat, midnight, 0); got != 0 {
		t.Fatalf("irradiance at midnight = %v, want 0", got)
	}
}

func TestIrradianceSummerNoon(t *testing.T) {
	noon := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	clear := Irradiance(berlinLat, noon, 0)
	if clear < 700 || clear > 1000 {
		t.Fatalf("clear-sky noon irradiance = %v, want several hundred W/m2", clear)
	}

	overcast := Irradiance(berlinLat, noon, 100)
	if overcast >= clear {
		t.Fatalf("full cloud cover did not attenuate: %v >= %v", overcast, clear)
	}
	// Cubic attenuation caps the loss at 75%.
	if want := clear * 0.25; math.Abs(overcast-want) > 1e-6 {
		t.Fatalf("fully overcast irradiance = %v, want %v", overcast, want)
	}
}

func TestIrradianceWinterBelowSummer(t *testing.T) {
	summer := Irradiance(berlinLat, time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC), 0)
	winter := Irradiance(berlinLat, time.Date(2026, 12, 21, 12, 0, 0, 0, time.UTC), 0)
	if winter >= summer {
		t.Fatalf("winter noon %v not below summer noon %v", winter, summer)
	}
	if winter <= 0 {
		t.Fatalf("winter noon irradiance = %v, want positive", winter)
	}
}

func TestWindOutputCurve(t *testing.T) {
	const capacity, cutIn, rated, cutOut = 50.0, 3.0, 12.0, 25.0

	if got := WindOutput(2, capacity, cutIn, rated, cutOut); got != 0 {
		t.Fatalf("below cut-in = %v, want 0", got)
	}
	if got := WindOutput(30, capacity, cutIn, rated, cutOut); got != 0 {
		t.Fatalf("above cut-out = %v, want 0", got)
	}
	if got := WindOutput(12, capacity, cutIn, rated, cutOut); got != capacity {
		t.Fatalf("at rated speed = %v, want %v", got, capacity)
	}
	if got := WindOutput(20, capacity, cutIn, rated, cutOut); got != capacity {
		t.Fatalf("above rated speed = %v, want %v", got, capacity)
	}
	// Halfway between cut-in and rated: cubic curve gives 1/8 of capacity.
	if got := WindOutput(7.5, capacity, cutIn, rated, cutOut); math.Abs(got-capacity/8) > 1e-9 {
		t.Fatalf("mid-curve output = %v, want %v", got, capacity/8)
	}
}

func TestOrientationFactor(t *testing.T) {
	if got := OrientationFactor(30, 180); got != 1 {
		t.Fatalf("optimal orientation factor = %v, want 1", got)
	}
	if got := OrientationFactor(30, 225); math.Abs(got-0.95) > 1e-9 {
		t.Fatalf("45 degrees off south = %v, want 0.95", got)
	}
	if got := OrientationFactor(45, 180); math.Abs(got-0.98) > 1e-9 {
		t.Fatalf("15 degrees off tilt = %v, want 0.98", got)
	}
}

func TestForecastCombinesPVAndWind(t *testing.T) {
	start := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	irr := model.TimeSeries{Feed: model.FeedSolarIrradiance, Resolution: model.CanonicalResolution, Points: []model.Point{
		{Time: start, Value: 1000},
		{Time: start.Add(model.CanonicalResolution), Value: 0},
	}}
	irr.MarkProvenance("openweather", model.ProvenanceLive)
	wind := model.TimeSeries{Feed: model.FeedWindSpeed, Resolution: model.CanonicalResolution, Points: []model.Point{
		{Time: start, Value: 12},
		{Time: start.Add(model.CanonicalResolution), Value: 12},
	}}
	wind.MarkProvenance("openweather", model.ProvenanceLive)

	f := NewForecaster(AssetConfig{PVCapacityKW: 10, PVEfficiency: 0.2, WindCapacityKW: 50})
	got, err := f.Forecast(irr, wind)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	// 1000 W/m2 on a 10 kW array at 20% efficiency plus rated wind.
	if math.Abs(got.Points[0].Value-52) > 1e-9 {
		t.Fatalf("combined output = %v, want 52", got.Points[0].Value)
	}
	// No sun: wind only.
	if math.Abs(got.Points[1].Value-50) > 1e-9 {
		t.Fatalf("wind-only output = %v, want 50", got.Points[1].Value)
	}
	if got.Unit != "kW" || got.Feed != "renewable_generation" {
		t.Fatalf("series identity: %s %s", got.Feed, got.Unit)
	}
}

// A forecast derived from fallback weather data must stay visibly degraded.
func TestForecastInheritsDegradedProvenance(t *testing.T) {
	start := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	irr := model.TimeSeries{Feed: model.FeedSolarIrradiance, Resolution: model.CanonicalResolution,
		Points: []model.Point{{Time: start, Value: 500}}}
	irr.MarkProvenance("historical", model.ProvenanceFallback)
	wind := model.TimeSeries{Feed: model.FeedWindSpeed, Resolution: model.CanonicalResolution,
		Points: []model.Point{{Time: start, Value: 5}}}
	wind.MarkProvenance("openweather", model.ProvenanceLive)

	f := NewForecaster(AssetConfig{})
	got, err := f.Forecast(irr, wind)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if !got.Degraded() {
		t.Fatalf("forecast from fallback weather not tagged degraded")
	}
}

func TestForecastRejectsMismatchedGrids(t *testing.T) {
	start := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	irr := model.TimeSeries{Resolution: model.CanonicalResolution,
		Points: []model.Point{{Time: start, Value: 500}}}
	wind := model.TimeSeries{Resolution: model.CanonicalResolution,
		Points: []model.Point{{Time: start, Value: 5}, {Time: start.Add(model.CanonicalResolution), Value: 5}}}

	f := NewForecaster(AssetConfig{})
	if _, err := f.Forecast(irr, wind); err == nil {
		t.Fatalf("mismatched grids accepted")
	}
}
