package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridkey/horizon/core/fallback"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
zone: DE_LU
location:
  lat: 52.52
  lon: 13.40
sources:
  open_weather:
    api_key: "k"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Zone != "DE_LU" {
		t.Fatalf("zone = %q", cfg.Zone)
	}
	if cfg.Pipeline.Cadence() != 12*time.Hour {
		t.Fatalf("cadence = %s", cfg.Pipeline.Cadence())
	}
	if cfg.Sources.FallbackPolicy() != fallback.FailClosed {
		t.Fatalf("default policy = %v", cfg.Sources.Policy)
	}
	if cfg.Sources.Breaker.Threshold != 3 || cfg.Sources.Breaker.Cooldown() != 5*time.Minute {
		t.Fatalf("breaker defaults = %+v", cfg.Sources.Breaker)
	}
	if cfg.Battery.CRate != 0.5 {
		t.Fatalf("battery c-rate = %v", cfg.Battery.CRate)
	}
	if got := cfg.Battery.Snapshot(cfg.Zone).MaxPowerKW; got != 2236 {
		t.Fatalf("max power = %v, want 2236 for 0.5C", got)
	}
	if cfg.Optimizer.Variant != "III-renew" {
		t.Fatalf("variant = %q", cfg.Optimizer.Variant)
	}
	if cfg.Sources.Archive.Dir != "data/archive" {
		t.Fatalf("archive dir = %q", cfg.Sources.Archive.Dir)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", `
zone: AT
battery:
  c_rate: 0.25
sources:
  policy: fail_open
  breaker:
    threshold: 5
    cooldown_seconds: 60
pipeline:
  cadence_hours: 6
  run_on_start: true
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Zone != "AT" {
		t.Fatalf("zone = %q", cfg.Zone)
	}
	if cfg.Sources.FallbackPolicy() != fallback.FailOpen {
		t.Fatalf("policy = %q", cfg.Sources.Policy)
	}
	if cfg.Sources.Breaker.Threshold != 5 || cfg.Sources.Breaker.Cooldown() != time.Minute {
		t.Fatalf("breaker = %+v", cfg.Sources.Breaker)
	}
	if cfg.Pipeline.Cadence() != 6*time.Hour {
		t.Fatalf("cadence = %s", cfg.Pipeline.Cadence())
	}
	if !cfg.Pipeline.RunOnStart {
		t.Fatalf("run_on_start not set")
	}
	if got := cfg.Battery.Snapshot(cfg.Zone).MaxPowerKW; got != 1118 {
		t.Fatalf("max power = %v, want 1118 for 0.25C", got)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_ZONE", "CH")
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Zone != "CH" {
		t.Fatalf("zone = %q, want env override CH", cfg.Zone)
	}
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{"zone": "DE_LU", "pipeline": {"cadence_hours": 8}}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Cadence() != 8*time.Hour {
		t.Fatalf("cadence = %s", cfg.Pipeline.Cadence())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad policy":  "sources:\n  policy: maybe\n",
		"bad cadence": "pipeline:\n  cadence_hours: 7\n",
		"bad c_rate":  "battery:\n  c_rate: 0.7\n",
		"bad variant": "optimizer:\n  variant: IV\n",
		"optimizer enabled without url": "optimizer:\n  enabled: true\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, "config.yaml", content)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.toml", "zone = 'DE_LU'")); err == nil {
		t.Fatalf("unsupported extension accepted")
	}
}
