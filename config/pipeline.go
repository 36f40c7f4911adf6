package config

import (
	"fmt"
	"time"
)

// PipelineConfig tunes the rolling assembly loop.
type PipelineConfig struct {
	// CadenceHours is how often a fresh horizon is assembled.
	CadenceHours int `json:"cadence_hours"`
	// RunOnStart triggers one assembly immediately instead of waiting for
	// the first tick.
	RunOnStart bool `json:"run_on_start"`
	// CacheTTLOverrideSeconds, when positive, replaces every feed's
	// default segment TTL. Used in tests and replay runs.
	CacheTTLOverrideSeconds int `json:"cache_ttl_override_seconds"`
}

// SetDefaults applies the standard 12-hour cadence.
func (c *PipelineConfig) SetDefaults() {
	if c.CadenceHours == 0 {
		c.CadenceHours = 12
	}
}

// Validate checks the cadence divides the day evenly.
func (c PipelineConfig) Validate() error {
	if c.CadenceHours <= 0 || 24%c.CadenceHours != 0 {
		return fmt.Errorf("cadence_hours %d must evenly divide 24", c.CadenceHours)
	}
	return nil
}

// Cadence returns the cadence as a duration.
func (c PipelineConfig) Cadence() time.Duration {
	return time.Duration(c.CadenceHours) * time.Hour
}
