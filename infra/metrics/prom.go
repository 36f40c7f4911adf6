package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/gridkey/horizon/core/metrics"
)

// PromSink records pipeline events in Prometheus metrics.
type PromSink struct {
	fetches    *prometheus.CounterVec
	fetchTime  *prometheus.HistogramVec
	cache      *prometheus.CounterVec
	assemblies *prometheus.CounterVec
	asmTime    prometheus.Histogram
	degraded   prometheus.Gauge
}

// NewPromSink registers pipeline metrics on the default Prometheus
// registerer. The Prometheus server is started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_fetches_total",
		Help: "Total number of resolved feed fetches",
	}, []string{"feed", "source", "outcome", "fallback"})
	fetchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_fetch_latency_seconds",
		Help:    "Latency of resolved feed fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed", "source"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "series_cache_requests_total",
		Help: "Total number of cache segment lookups",
	}, []string{"feed", "hit"})
	assemblies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "horizon_assemblies_total",
		Help: "Total number of horizon assemblies",
	}, []string{"outcome", "degraded"})
	asmTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "horizon_assembly_duration_seconds",
		Help:    "Wall time of one horizon assembly",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	degraded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "horizon_last_assembly_degraded",
		Help: "Whether the most recent assembly used fallback data",
	})

	collectors := []prometheus.Collector{fetches, fetchTime, cache, assemblies, asmTime, degraded}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch i {
			case 0:
				fetches = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				fetchTime = are.ExistingCollector.(*prometheus.HistogramVec)
			case 2:
				cache = are.ExistingCollector.(*prometheus.CounterVec)
			case 3:
				assemblies = are.ExistingCollector.(*prometheus.CounterVec)
			case 4:
				asmTime = are.ExistingCollector.(prometheus.Histogram)
			case 5:
				degraded = are.ExistingCollector.(prometheus.Gauge)
			}
		}
	}

	return &PromSink{
		fetches:    fetches,
		fetchTime:  fetchTime,
		cache:      cache,
		assemblies: assemblies,
		asmTime:    asmTime,
		degraded:   degraded,
	}, nil
}

// RecordFetch increments the fetch counter and observes latency.
func (s *PromSink) RecordFetch(ev coremetrics.FetchEvent) error {
	s.fetches.WithLabelValues(string(ev.Feed), ev.Source, ev.Outcome, strconv.FormatBool(ev.Fallback)).Inc()
	if ev.Latency > 0 {
		s.fetchTime.WithLabelValues(string(ev.Feed), ev.Source).Observe(ev.Latency.Seconds())
	}
	return nil
}

// RecordCache increments the cache lookup counter.
func (s *PromSink) RecordCache(ev coremetrics.CacheEvent) error {
	s.cache.WithLabelValues(string(ev.Feed), strconv.FormatBool(ev.Hit)).Inc()
	return nil
}

// RecordAssembly counts the assembly and tracks its duration and health.
func (s *PromSink) RecordAssembly(ev coremetrics.AssemblyEvent) error {
	outcome := "ok"
	if ev.Err != "" {
		outcome = "error"
	}
	s.assemblies.WithLabelValues(outcome, strconv.FormatBool(ev.Degraded)).Inc()
	s.asmTime.Observe(ev.Duration.Seconds())
	if ev.Err == "" {
		if ev.Degraded {
			s.degraded.Set(1)
		} else {
			s.degraded.Set(0)
		}
	}
	return nil
}
