package config

import (
	"fmt"
	"time"

	"github.com/gridkey/horizon/connectors/archive"
	"github.com/gridkey/horizon/connectors/energycharts"
	"github.com/gridkey/horizon/connectors/entsoe"
	"github.com/gridkey/horizon/connectors/openweather"
	"github.com/gridkey/horizon/connectors/regelleistung"
	"github.com/gridkey/horizon/core/fallback"
)

// BreakerConfig tunes the per-source circuit breaker.
type BreakerConfig struct {
	Threshold       int `json:"threshold"`
	CooldownSeconds int `json:"cooldown_seconds"`
}

// Cooldown returns the cooldown as a duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// SourcesConfig wires the provider clients and the chain policy.
type SourcesConfig struct {
	// Policy selects chain behavior after exhaustion: "fail_closed"
	// aborts the assembly, "fail_open" falls back to archived data.
	Policy        string               `json:"policy"`
	Breaker       BreakerConfig        `json:"breaker"`
	EnergyCharts  energycharts.Config  `json:"energy_charts"`
	Entsoe        entsoe.Config        `json:"entsoe"`
	Regelleistung regelleistung.Config `json:"regelleistung"`
	OpenWeather   openweather.Config   `json:"open_weather"`
	Archive       archive.Config       `json:"archive"`
}

// SetDefaults fills provider priorities and breaker settings.
func (c *SourcesConfig) SetDefaults() {
	if c.Policy == "" {
		c.Policy = "fail_closed"
	}
	if c.Breaker.Threshold == 0 {
		c.Breaker.Threshold = 3
	}
	if c.Breaker.CooldownSeconds == 0 {
		c.Breaker.CooldownSeconds = 300
	}
	// Priorities order each feed's chain; the archive always comes last.
	if c.Entsoe.Priority == 0 {
		c.Entsoe.Priority = 1
	}
	if c.Archive.Priority == 0 {
		c.Archive.Priority = 10
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = "data/archive"
	}
}

// Validate checks the chain policy.
func (c SourcesConfig) Validate() error {
	if c.Policy != "fail_closed" && c.Policy != "fail_open" {
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}

// FallbackPolicy maps the configured policy string onto the chain constant.
func (c SourcesConfig) FallbackPolicy() fallback.Policy {
	if c.Policy == "fail_open" {
		return fallback.FailOpen
	}
	return fallback.FailClosed
}
