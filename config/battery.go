package config

import (
	"fmt"

	"github.com/gridkey/horizon/core/model"
)

// maxPowerByCRate holds the supported C-rate operating modes of the
// LUNA2000-4.5MWh unit and their resulting power limits.
var maxPowerByCRate = map[float64]float64{
	0.25: 1118,
	0.33: 1476,
	0.5:  2236,
}

// BatteryConfig describes the storage unit the schedules are computed for.
type BatteryConfig struct {
	Model         string  `json:"model"`
	CapacityKWh   float64 `json:"capacity_kwh"`
	CRate         float64 `json:"c_rate"`
	MinSoC        float64 `json:"min_soc"`
	MaxSoC        float64 `json:"max_soc"`
	Efficiency    float64 `json:"efficiency"`
	SelfDischarge float64 `json:"self_discharge_rate"`
	InitialSoC    float64 `json:"initial_soc"`
}

// SetDefaults applies the LUNA2000-4.5MWh reference parameters.
func (c *BatteryConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "Huawei LUNA2000-4.5MWh"
	}
	if c.CapacityKWh == 0 {
		c.CapacityKWh = 4472
	}
	if c.CRate == 0 {
		c.CRate = 0.5
	}
	if c.MinSoC == 0 {
		c.MinSoC = 0.1
	}
	if c.MaxSoC == 0 {
		c.MaxSoC = 0.9
	}
	if c.Efficiency == 0 {
		c.Efficiency = 0.95
	}
	if c.SelfDischarge == 0 {
		c.SelfDischarge = 0.001
	}
	if c.InitialSoC == 0 {
		c.InitialSoC = 0.5
	}
}

// Validate checks the parameters against the supported operating modes.
func (c BatteryConfig) Validate() error {
	if _, ok := maxPowerByCRate[c.CRate]; !ok {
		return fmt.Errorf("unsupported c_rate %.2f (supported: 0.25, 0.33, 0.5)", c.CRate)
	}
	if c.CapacityKWh <= 0 {
		return fmt.Errorf("capacity_kwh must be positive")
	}
	return nil
}

// Snapshot converts the configuration into the model snapshot attached to
// every assembled input.
func (c BatteryConfig) Snapshot(zone string) model.BatterySnapshot {
	return model.BatterySnapshot{
		Model:         c.Model,
		Zone:          zone,
		CapacityKWh:   c.CapacityKWh,
		CRate:         c.CRate,
		MaxPowerKW:    maxPowerByCRate[c.CRate],
		MinSoC:        c.MinSoC,
		MaxSoC:        c.MaxSoC,
		Efficiency:    c.Efficiency,
		SelfDischarge: c.SelfDischarge,
		InitialSoC:    c.InitialSoC,
	}
}
