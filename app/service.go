// Package app wires the configured providers, chains, cache and assembler
// into the running service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gridkey/horizon/config"
	"github.com/gridkey/horizon/connectors/archive"
	"github.com/gridkey/horizon/connectors/energycharts"
	"github.com/gridkey/horizon/connectors/entsoe"
	"github.com/gridkey/horizon/connectors/openweather"
	"github.com/gridkey/horizon/connectors/regelleistung"
	"github.com/gridkey/horizon/core/assemble"
	"github.com/gridkey/horizon/core/cache"
	"github.com/gridkey/horizon/core/fallback"
	"github.com/gridkey/horizon/core/generation"
	coremetrics "github.com/gridkey/horizon/core/metrics"
	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/optimizer"
	"github.com/gridkey/horizon/core/source"
	"github.com/gridkey/horizon/core/validate"
	"github.com/gridkey/horizon/infra/logger"
	"github.com/gridkey/horizon/infra/metrics"
	"github.com/gridkey/horizon/infra/notify"
	"github.com/gridkey/horizon/internal/eventbus"
)

// Service orchestrates the rolling assembly loop.
type Service struct {
	assembler *assemble.Assembler
	validator *validate.Validator
	adapter   optimizer.Adapter
	notifier  notify.Notifier
	battery   model.BatterySnapshot
	variant   optimizer.ModelVariant
	cadence   time.Duration
	runOnTick bool

	bus *eventbus.Bus[eventbus.RunEvent]
	log logger.Logger

	promEnabled bool
	promAddr    string
	now         func() time.Time
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	feeds := model.RequiredFeeds(cfg.Zone)
	if ttl := cfg.Pipeline.CacheTTLOverrideSeconds; ttl > 0 {
		for i := range feeds {
			feeds[i].CacheTTL = time.Duration(ttl) * time.Second
		}
	}

	sink, err := buildSink(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	hist := archive.New(cfg.Sources.Archive, feeds)
	chains, err := buildChains(cfg, feeds, hist, logg)
	if err != nil {
		return nil, err
	}

	forecaster := generation.NewForecaster(cfg.Assets)
	asm, err := assemble.New(feeds, chains, cache.New(), forecaster, cfg.Assembly, sink, logg)
	if err != nil {
		return nil, fmt.Errorf("assembler: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		notifier, err = notify.NewMQTT(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
	}

	var adapter optimizer.Adapter
	if cfg.Optimizer.Enabled {
		adapter = optimizer.NewHTTP(cfg.Optimizer.URL, cfg.Optimizer.Timeout(), logger.New("optimizer"))
	}

	promPort := cfg.Metrics.PrometheusPort
	if promPort == 0 {
		promPort = 2112
	}

	return &Service{
		assembler:   asm,
		validator:   validate.New(feeds),
		adapter:     adapter,
		notifier:    notifier,
		battery:     cfg.Battery.Snapshot(cfg.Zone),
		variant:     optimizer.ModelVariant(cfg.Optimizer.Variant),
		cadence:     cfg.Pipeline.Cadence(),
		runOnTick:   cfg.Pipeline.RunOnStart,
		bus:         eventbus.New[eventbus.RunEvent](),
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    fmt.Sprintf(":%d", promPort),
		now:         time.Now,
	}, nil
}

func buildSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return metrics.NewMultiSink(sinks...), nil
	}
}

// buildChains assembles one fallback chain per feed from the configured
// providers. The archive never joins a chain directly; it only answers under
// the fail-open policy.
func buildChains(cfg *config.Config, feeds []model.Feed, hist source.Client, log logger.Logger) (map[model.FeedName]*fallback.Chain, error) {
	ec, err := energycharts.New(cfg.Sources.EnergyCharts)
	if err != nil {
		return nil, fmt.Errorf("energy-charts: %w", err)
	}
	dayAhead := []source.Client{source.Limited(ec)}
	if cfg.Sources.Entsoe.Token != "" {
		en, err := entsoe.New(cfg.Sources.Entsoe)
		if err != nil {
			return nil, fmt.Errorf("entsoe: %w", err)
		}
		dayAhead = append(dayAhead, source.Limited(en))
	}

	rl := source.Limited(regelleistung.New(cfg.Sources.Regelleistung))

	ow, err := openweather.New(cfg.Sources.OpenWeather)
	if err != nil {
		return nil, fmt.Errorf("openweather: %w", err)
	}
	weather := source.Limited(ow)

	// One breaker set across all chains: the regelleistung client serves
	// five feeds and must not trip five times during one outage.
	opts := []fallback.Option{
		fallback.WithPolicy(cfg.Sources.FallbackPolicy()),
		fallback.WithBreaker(cfg.Sources.Breaker.Threshold, cfg.Sources.Breaker.Cooldown()),
		fallback.WithHistorical(hist),
		fallback.WithSharedBreakers(fallback.NewBreakers()),
	}

	chains := make(map[model.FeedName]*fallback.Chain, len(feeds))
	for _, f := range feeds {
		var clients []source.Client
		switch f.Name {
		case model.FeedDayAhead:
			clients = dayAhead
		case model.FeedFCR, model.FeedAFRRCapacityPos, model.FeedAFRRCapacityNeg,
			model.FeedAFRREnergyPos, model.FeedAFRREnergyNeg:
			clients = []source.Client{rl}
		default:
			clients = []source.Client{weather}
		}
		chains[f.Name] = fallback.New(f, clients, log, opts...)
	}
	return chains, nil
}

// Events exposes the run milestone bus.
func (s *Service) Events() *eventbus.Bus[eventbus.RunEvent] { return s.bus }

// Run starts the rolling loop and blocks until the context is cancelled.
// A fresh horizon is assembled at every cadence boundary.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if s.runOnTick {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Errorf("initial run: %v", err)
		}
	}

	for {
		wait := s.untilNextTick()
		s.log.Infof("next assembly in %s", wait.Round(time.Second))
		select {
		case <-ctx.Done():
			s.bus.Close()
			s.notifier.Close()
			return nil
		case <-time.After(wait):
			if err := s.RunOnce(ctx); err != nil {
				s.log.Errorf("run: %v", err)
			}
		}
	}
}

// untilNextTick returns the wait until the next cadence boundary.
func (s *Service) untilNextTick() time.Duration {
	now := s.now()
	next := now.Truncate(s.cadence).Add(s.cadence)
	return next.Sub(now)
}

// AssembleInput assembles and validates one horizon anchored at the current
// cadence boundary and returns the record.
func (s *Service) AssembleInput(ctx context.Context) (*model.OptimizationInput, error) {
	start := s.now().UTC().Truncate(s.cadence)
	h := model.NewRollingHorizon(start, s.cadence)
	s.bus.Publish(eventbus.RunEvent{Phase: eventbus.PhaseAssembling, Start: h.Start, Time: s.now()})

	in, err := s.assembler.Assemble(ctx, h, s.battery)
	if err != nil {
		s.bus.Publish(eventbus.RunEvent{Phase: eventbus.PhaseFailed, Start: h.Start, Err: err, Time: s.now()})
		return nil, fmt.Errorf("assemble horizon at %s: %w", h.Start, err)
	}
	if err := s.validator.Validate(in); err != nil {
		s.bus.Publish(eventbus.RunEvent{RunID: in.RunID, Phase: eventbus.PhaseFailed, Start: h.Start, Err: err, Time: s.now()})
		return nil, fmt.Errorf("validate run %s: %w", in.RunID, err)
	}
	s.log.Infof("run %s assembled: degraded=%v feeds=%d", in.RunID, in.Degraded(), len(in.Series))
	s.bus.Publish(eventbus.RunEvent{RunID: in.RunID, Phase: eventbus.PhaseAssembled, Start: h.Start, Degraded: in.Degraded(), Time: s.now()})
	return in, nil
}

// RunOnce assembles, validates, publishes and (when configured) solves one
// horizon.
func (s *Service) RunOnce(ctx context.Context) error {
	in, err := s.AssembleInput(ctx)
	if err != nil {
		return err
	}

	if err := s.notifier.InputReady(in); err != nil {
		s.log.Warnf("notify input: %v", err)
	}

	if s.adapter != nil {
		sched, err := s.adapter.Solve(ctx, in, s.variant)
		if err != nil {
			s.bus.Publish(eventbus.RunEvent{RunID: in.RunID, Phase: eventbus.PhaseFailed, Start: in.Horizon.Start, Err: err, Time: s.now()})
			return fmt.Errorf("solve run %s: %w", in.RunID, err)
		}
		s.bus.Publish(eventbus.RunEvent{RunID: in.RunID, Phase: eventbus.PhaseSolved, Start: in.Horizon.Start, Degraded: in.Degraded(), Time: s.now()})
		if err := s.notifier.ScheduleReady(sched); err != nil {
			s.log.Warnf("notify schedule: %v", err)
		}
	}
	return nil
}
