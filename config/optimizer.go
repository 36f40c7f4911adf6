package config

import (
	"fmt"
	"time"

	"github.com/gridkey/horizon/core/optimizer"
)

// OptimizerConfig points at the solver service.
type OptimizerConfig struct {
	// Enabled submits assembled inputs to the solver. When false the
	// service only assembles and publishes inputs.
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url"`
	Variant        string `json:"variant"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults applies the full co-optimization variant.
func (c *OptimizerConfig) SetDefaults() {
	if c.Variant == "" {
		c.Variant = string(optimizer.VariantIIIRenew)
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 300
	}
}

// Validate checks the variant and endpoint.
func (c OptimizerConfig) Validate() error {
	if !optimizer.ModelVariant(c.Variant).Valid() {
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
	if c.Enabled && c.URL == "" {
		return fmt.Errorf("url is required when enabled")
	}
	return nil
}

// Timeout returns the solver timeout as a duration.
func (c OptimizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
