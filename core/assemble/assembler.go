// Package assemble drives the parallel fetch of every required feed for a
// horizon and merges the results into one OptimizationInput.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gridkey/horizon/core/cache"
	"github.com/gridkey/horizon/core/fallback"
	"github.com/gridkey/horizon/core/generation"
	"github.com/gridkey/horizon/core/logger"
	"github.com/gridkey/horizon/core/metrics"
	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/resample"
	"github.com/gridkey/horizon/core/source"
)

// TimeoutError reports that the overall assembly deadline expired before
// every feed completed. Pending lists the feeds still unresolved when the
// deadline hit.
type TimeoutError struct {
	Pending  []model.FeedName
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	names := make([]string, len(e.Pending))
	for i, f := range e.Pending {
		names[i] = string(f)
	}
	return fmt.Sprintf("assembly deadline %s exceeded, pending feeds: %s",
		e.Deadline, strings.Join(names, ", "))
}

// Assembler fans out one task per feed, each walking cache, fallback chain
// and resampler, and joins the results. It either returns a complete input
// or fails; it never emits a partially-populated record.
type Assembler struct {
	feeds      []model.Feed
	chains     map[model.FeedName]*fallback.Chain
	cache      *cache.SeriesCache
	forecaster *generation.Forecaster

	perFeedTimeout time.Duration
	deadline       time.Duration

	sink metrics.Sink
	log  logger.Logger
	now  func() time.Time
}

// Config bounds one assembly run.
type Config struct {
	PerFeedTimeout time.Duration `json:"per_feed_timeout"`
	Deadline       time.Duration `json:"deadline"`
}

// SetDefaults fills unset timeouts.
func (c *Config) SetDefaults() {
	if c.PerFeedTimeout <= 0 {
		c.PerFeedTimeout = 30 * time.Second
	}
	if c.Deadline <= 0 {
		c.Deadline = 2 * time.Minute
	}
}

// New builds an assembler over the given chains. Every feed must have a
// chain; the optimizer's schema is fixed.
func New(feeds []model.Feed, chains map[model.FeedName]*fallback.Chain, sc *cache.SeriesCache,
	fc *generation.Forecaster, cfg Config, sink metrics.Sink, log logger.Logger) (*Assembler, error) {
	cfg.SetDefaults()
	for _, f := range feeds {
		if _, ok := chains[f.Name]; !ok {
			return nil, fmt.Errorf("no fallback chain configured for feed %s", f.Name)
		}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Assembler{
		feeds:          feeds,
		chains:         chains,
		cache:          sc,
		forecaster:     fc,
		perFeedTimeout: cfg.PerFeedTimeout,
		deadline:       cfg.Deadline,
		sink:           sink,
		log:            log,
		now:            time.Now,
	}, nil
}

// Assemble resolves every required feed for the horizon and returns the
// merged record. If any feed cannot be resolved within its timeout or
// fallback chain, the whole assembly fails.
func (a *Assembler) Assemble(ctx context.Context, h model.Horizon, battery model.BatterySnapshot) (*model.OptimizationInput, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	started := a.now()

	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	series := make([]model.TimeSeries, len(a.feeds))
	var mu sync.Mutex
	pending := make(map[model.FeedName]struct{}, len(a.feeds))
	for _, f := range a.feeds {
		pending[f.Name] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range a.feeds {
		i, feed := i, feed
		g.Go(func() error {
			fctx, fcancel := context.WithTimeout(gctx, a.perFeedTimeout)
			defer fcancel()
			s, err := a.resolveFeed(fctx, feed, h)
			if err != nil {
				return err
			}
			mu.Lock()
			series[i] = s
			delete(pending, feed.Name)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.record(runID, started, 0, false, err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			mu.Lock()
			left := make([]model.FeedName, 0, len(pending))
			for f := range pending {
				left = append(left, f)
			}
			mu.Unlock()
			sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
			return nil, &TimeoutError{Pending: left, Deadline: a.deadline}
		}
		return nil, err
	}

	in := &model.OptimizationInput{
		RunID:       runID,
		Horizon:     h,
		Series:      make(map[model.FeedName]model.TimeSeries, len(a.feeds)),
		Battery:     battery,
		AssembledAt: a.now(),
	}
	for i, f := range a.feeds {
		in.Series[f.Name] = series[i]
	}

	if a.forecaster != nil {
		irr, okI := in.Series[model.FeedSolarIrradiance]
		wind, okW := in.Series[model.FeedWindSpeed]
		if okI && okW {
			gen, err := a.forecaster.Forecast(irr, wind)
			if err != nil {
				a.record(runID, started, len(a.feeds), false, err)
				return nil, err
			}
			in.Renewable = &gen
		}
	}

	a.record(runID, started, len(a.feeds), in.Degraded(), nil)
	return in, nil
}

// resolveFeed assembles one feed from its cadence-sized segments, serving
// overlap with the previous horizon from cache and fetching only uncovered
// segments.
func (a *Assembler) resolveFeed(ctx context.Context, feed model.Feed, h model.Horizon) (model.TimeSeries, error) {
	chain := a.chains[feed.Name]
	var out model.TimeSeries
	for i, seg := range h.Segments() {
		s, hit, err := a.cache.GetOrFetch(ctx, feed, seg, a.loader(feed, chain))
		if rerr := a.sink.RecordCache(metrics.CacheEvent{Feed: feed.Name, Hit: hit, Time: a.now()}); rerr != nil {
			a.log.Debugf("cache metric: %v", rerr)
		}
		if err != nil {
			return model.TimeSeries{}, err
		}
		if i == 0 {
			out = s
			continue
		}
		if err := out.Concat(s); err != nil {
			return model.TimeSeries{}, err
		}
	}
	if out.Len() != h.Points() {
		return model.TimeSeries{}, fmt.Errorf("feed %s resolved %d points, want %d", feed.Name, out.Len(), h.Points())
	}
	if err := out.Check(); err != nil {
		return model.TimeSeries{}, err
	}
	return out, nil
}

// loader resolves one cache segment through the fallback chain and aligns it
// onto the canonical grid. Continuous coarse feeds fetch one native interval
// past the segment so interpolation has a right anchor at the boundary.
func (a *Assembler) loader(feed model.Feed, chain *fallback.Chain) cache.Loader {
	return func(ctx context.Context, seg model.Window) (model.TimeSeries, error) {
		fetchWin := seg
		if feed.Kind == model.KindContinuous && feed.NativeResolution > model.CanonicalResolution {
			fetchWin.End = fetchWin.End.Add(feed.NativeResolution)
		}
		res, err := chain.Resolve(ctx, fetchWin)
		a.recordFetch(feed, res, err)
		if err != nil {
			return model.TimeSeries{}, err
		}
		return resample.ToCanonical(res.Series, feed, seg)
	}
}

func (a *Assembler) recordFetch(feed model.Feed, res source.FetchResult, err error) {
	ev := metrics.FetchEvent{
		Feed:    feed.Name,
		Source:  res.Source.Name,
		Outcome: "ok",
		Latency: res.Latency,
		Time:    a.now(),
	}
	if err != nil {
		ev.Outcome = "exhausted"
	} else if res.Series.Degraded() {
		ev.Fallback = true
	}
	if rerr := a.sink.RecordFetch(ev); rerr != nil {
		a.log.Debugf("fetch metric: %v", rerr)
	}
}

func (a *Assembler) record(runID string, started time.Time, feeds int, degraded bool, err error) {
	ev := metrics.AssemblyEvent{
		RunID:    runID,
		Start:    started,
		Duration: a.now().Sub(started),
		Feeds:    feeds,
		Degraded: degraded,
		Time:     a.now(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	if rerr := a.sink.RecordAssembly(ev); rerr != nil {
		a.log.Debugf("assembly metric: %v", rerr)
	}
}
