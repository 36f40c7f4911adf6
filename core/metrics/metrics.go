// Package metrics defines the observability events emitted by the pipeline
// and the sink interface infra adapters implement.
package metrics

import (
	"time"

	"github.com/gridkey/horizon/core/model"
)

// FetchEvent records one provider fetch resolved by a fallback chain.
type FetchEvent struct {
	Feed     model.FeedName
	Source   string
	Outcome  string // "ok", "unavailable", "auth", "no_data", "schema", "exhausted"
	Fallback bool
	Latency  time.Duration
	Time     time.Time
}

// CacheEvent records one series-cache access.
type CacheEvent struct {
	Feed model.FeedName
	Hit  bool
	Time time.Time
}

// AssemblyEvent records one horizon assembly run.
type AssemblyEvent struct {
	RunID    string
	Start    time.Time
	Duration time.Duration
	Feeds    int
	Degraded bool
	Err      string
	Time     time.Time
}

// Sink records pipeline events for observability purposes. Implementations
// must be safe for concurrent use.
type Sink interface {
	RecordFetch(ev FetchEvent) error
	RecordCache(ev CacheEvent) error
	RecordAssembly(ev AssemblyEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordFetch(FetchEvent) error       { return nil }
func (NopSink) RecordCache(CacheEvent) error       { return nil }
func (NopSink) RecordAssembly(AssemblyEvent) error { return nil }

// Config selects and configures the metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    int    `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
