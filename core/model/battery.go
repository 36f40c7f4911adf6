package model

import "fmt"

// BatterySnapshot is the static battery configuration attached to an
// OptimizationInput. It is copied once at assembly time and never mutated
// afterwards.
type BatterySnapshot struct {
	Model         string  `json:"model"`
	Zone          string  `json:"zone"`
	CapacityKWh   float64 `json:"capacity_kwh"`
	CRate         float64 `json:"c_rate"`
	MaxPowerKW    float64 `json:"max_power_kw"`
	MinSoC        float64 `json:"min_soc"`
	MaxSoC        float64 `json:"max_soc"`
	Efficiency    float64 `json:"efficiency"`
	SelfDischarge float64 `json:"self_discharge_rate"`
	InitialSoC    float64 `json:"initial_soc"`
}

// Validate checks the snapshot for physically meaningless values.
func (b BatterySnapshot) Validate() error {
	if b.CapacityKWh <= 0 {
		return fmt.Errorf("battery capacity must be positive, got %.1f", b.CapacityKWh)
	}
	if b.CRate <= 0 {
		return fmt.Errorf("battery c-rate must be positive, got %.2f", b.CRate)
	}
	if b.Efficiency <= 0 || b.Efficiency > 1 {
		return fmt.Errorf("battery efficiency must be in (0, 1], got %.3f", b.Efficiency)
	}
	if b.MinSoC < 0 || b.MaxSoC > 1 || b.MinSoC >= b.MaxSoC {
		return fmt.Errorf("battery SoC bounds [%.2f, %.2f] invalid", b.MinSoC, b.MaxSoC)
	}
	if b.InitialSoC < b.MinSoC || b.InitialSoC > b.MaxSoC {
		return fmt.Errorf("initial SoC %.2f outside bounds [%.2f, %.2f]", b.InitialSoC, b.MinSoC, b.MaxSoC)
	}
	return nil
}
