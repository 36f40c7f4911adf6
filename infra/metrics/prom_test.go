package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/gridkey/horizon/core/metrics"
	"github.com/gridkey/horizon/core/model"
)

func newTestPromSink(t *testing.T) *PromSink {
	t.Helper()
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	return sink
}

func TestPromSink_RecordFetch(t *testing.T) {
	sink := newTestPromSink(t)
	if err := sink.RecordFetch(coremetrics.FetchEvent{
		Feed:    model.FeedDayAhead,
		Source:  "energy-charts",
		Outcome: "ok",
		Latency: 120 * time.Millisecond,
		Time:    time.Now(),
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP feed_fetches_total Total number of resolved feed fetches
# TYPE feed_fetches_total counter
feed_fetches_total{fallback="false",feed="day_ahead_price",outcome="ok",source="energy-charts"} 1
`
	if err := testutil.CollectAndCompare(sink.fetches, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if c := testutil.CollectAndCount(sink.fetchTime); c == 0 {
		t.Errorf("latency not recorded")
	}
}

func TestPromSink_RecordCache(t *testing.T) {
	sink := newTestPromSink(t)
	for _, hit := range []bool{true, true, false} {
		if err := sink.RecordCache(coremetrics.CacheEvent{Feed: model.FeedFCR, Hit: hit, Time: time.Now()}); err != nil {
			t.Fatalf("record error: %v", err)
		}
	}

	expected := `
# HELP series_cache_requests_total Total number of cache segment lookups
# TYPE series_cache_requests_total counter
series_cache_requests_total{feed="fcr_price",hit="false"} 1
series_cache_requests_total{feed="fcr_price",hit="true"} 2
`
	if err := testutil.CollectAndCompare(sink.cache, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestPromSink_RecordAssembly(t *testing.T) {
	sink := newTestPromSink(t)
	if err := sink.RecordAssembly(coremetrics.AssemblyEvent{
		RunID:    "run-1",
		Duration: 3 * time.Second,
		Feeds:    12,
		Degraded: true,
		Time:     time.Now(),
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP horizon_assemblies_total Total number of horizon assemblies
# TYPE horizon_assemblies_total counter
horizon_assemblies_total{degraded="true",outcome="ok"} 1
`
	if err := testutil.CollectAndCompare(sink.assemblies, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if got := testutil.ToFloat64(sink.degraded); got != 1 {
		t.Errorf("degraded gauge = %v, want 1", got)
	}

	// A failed assembly counts as an error and leaves the gauge alone.
	if err := sink.RecordAssembly(coremetrics.AssemblyEvent{
		RunID: "run-2",
		Err:   "all sources exhausted",
		Time:  time.Now(),
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if got := testutil.ToFloat64(sink.degraded); got != 1 {
		t.Errorf("degraded gauge = %v after failed run, want unchanged 1", got)
	}
}

// Registering twice on the same registry must reuse the existing collectors
// instead of failing.
func TestPromSinkReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("second create: %v", err)
	}
}
