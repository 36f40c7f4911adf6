package generation

import (
	"fmt"

	"github.com/gridkey/horizon/core/model"
)

// AssetConfig holds the physical parameters of the co-located PV and wind
// assets whose output the forecaster predicts.
type AssetConfig struct {
	PVCapacityKW   float64 `json:"pv_capacity_kw"`
	PVTilt         float64 `json:"pv_tilt"`
	PVAzimuth      float64 `json:"pv_azimuth"`
	PVEfficiency   float64 `json:"pv_efficiency"`
	WindCapacityKW float64 `json:"wind_capacity_kw"`
	WindCutIn      float64 `json:"wind_cut_in_speed"`
	WindRated      float64 `json:"wind_rated_speed"`
	WindCutOut     float64 `json:"wind_cut_out_speed"`
}

// SetDefaults fills unset fields with the reference asset parameters.
func (c *AssetConfig) SetDefaults() {
	if c.PVCapacityKW == 0 {
		c.PVCapacityKW = 10
	}
	if c.PVTilt == 0 {
		c.PVTilt = 30
	}
	if c.PVAzimuth == 0 {
		c.PVAzimuth = 180
	}
	if c.PVEfficiency == 0 {
		c.PVEfficiency = 0.20
	}
	if c.WindCapacityKW == 0 {
		c.WindCapacityKW = 50
	}
	if c.WindCutIn == 0 {
		c.WindCutIn = 3
	}
	if c.WindRated == 0 {
		c.WindRated = 12
	}
	if c.WindCutOut == 0 {
		c.WindCutOut = 25
	}
}

// Forecaster combines the aligned irradiance and wind-speed feeds into a
// single generation series on the same grid.
type Forecaster struct {
	assets AssetConfig
}

// NewForecaster builds a forecaster for the given assets.
func NewForecaster(assets AssetConfig) *Forecaster {
	assets.SetDefaults()
	return &Forecaster{assets: assets}
}

// Forecast derives combined PV + wind output in kW from the canonical
// weather series. Both inputs must share the same grid. The result inherits
// the inputs' provenance so a forecast derived from fallback weather data
// stays visibly degraded.
func (f *Forecaster) Forecast(irradiance, windSpeed model.TimeSeries) (model.TimeSeries, error) {
	if len(irradiance.Points) != len(windSpeed.Points) {
		return model.TimeSeries{}, fmt.Errorf("generation forecast: irradiance has %d points, wind %d",
			len(irradiance.Points), len(windSpeed.Points))
	}
	orientation := OrientationFactor(f.assets.PVTilt, f.assets.PVAzimuth)
	out := model.TimeSeries{
		Feed:       "renewable_generation",
		Unit:       "kW",
		Resolution: irradiance.Resolution,
		Provenance: mergeProvenance(irradiance, windSpeed),
	}
	for i, p := range irradiance.Points {
		w := windSpeed.Points[i]
		if !w.Time.Equal(p.Time) {
			return model.TimeSeries{}, fmt.Errorf("generation forecast: grids diverge at index %d", i)
		}
		pv := PVOutput(p.Value, f.assets.PVCapacityKW, f.assets.PVEfficiency) * orientation
		wind := WindOutput(w.Value, f.assets.WindCapacityKW, f.assets.WindCutIn, f.assets.WindRated, f.assets.WindCutOut)
		out.Points = append(out.Points, model.Point{Time: p.Time, Value: pv + wind})
	}
	return out, nil
}

func mergeProvenance(a, b model.TimeSeries) []model.Provenance {
	out := make([]model.Provenance, 0, len(a.Provenance)+len(b.Provenance))
	out = append(out, a.Provenance...)
	for _, p := range b.Provenance {
		dup := false
		for _, q := range a.Provenance {
			if q == p {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
