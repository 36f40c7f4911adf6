// Package config loads and validates the service configuration from YAML or
// JSON files with environment-variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gridkey/horizon/core/assemble"
	"github.com/gridkey/horizon/core/generation"
	"github.com/gridkey/horizon/core/metrics"
	"github.com/gridkey/horizon/infra/notify"
)

// Config is the root service configuration.
type Config struct {
	Zone      string                 `json:"zone"`
	Location  LocationConfig         `json:"location"`
	Battery   BatteryConfig          `json:"battery"`
	Assets    generation.AssetConfig `json:"assets"`
	Sources   SourcesConfig          `json:"sources"`
	Pipeline  PipelineConfig         `json:"pipeline"`
	Assembly  assemble.Config        `json:"assembly"`
	Optimizer OptimizerConfig        `json:"optimizer"`
	Metrics   metrics.Config         `json:"metrics"`
	Notify    notify.Config          `json:"notify"`
}

// LocationConfig places the battery site for solar geometry.
type LocationConfig struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Load reads the configuration file at path. Environment variables prefixed
// with K_ override file keys, with __ as the nesting separator.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields across all sections.
func (c *Config) SetDefaults() {
	if c.Zone == "" {
		c.Zone = "DE_LU"
	}
	c.Battery.SetDefaults()
	c.Assets.SetDefaults()
	c.Sources.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Assembly.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Notify.SetDefaults()
}

// Validate checks mandatory fields across all sections.
func (c *Config) Validate() error {
	if err := c.Battery.Validate(); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	if err := c.Sources.Validate(); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	return nil
}
