// Package fallback orders the source clients of one feed and applies the
// retry, circuit-breaking and degradation policy between them.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gridkey/horizon/core/logger"
	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

// Policy decides what happens when every live source has failed.
type Policy int

const (
	// FailClosed surfaces an ExhaustedError; no substitute data is used.
	FailClosed Policy = iota
	// FailOpen substitutes the historical archive source, tagging the
	// result with fallback provenance.
	FailOpen
)

// Attempt records one failed source for the aggregated error report.
type Attempt struct {
	Source string
	Err    error
}

// ExhaustedError aggregates every attempted source and its failure reason
// for one feed. The chain never silently returns an empty series instead.
type ExhaustedError struct {
	Feed     model.FeedName
	Window   model.Window
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all sources exhausted for %s over %s:", e.Feed, e.Window)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " [%s: %v]", a.Source, a.Err)
	}
	return b.String()
}

// Unwrap exposes the attempt errors so callers can match the underlying
// causes with errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Err
	}
	return out
}

// breakerState is the mutable circuit half of one provider.
type breakerState struct {
	consecutiveFailures int
	cooldownUntil       time.Time
}

// Breakers holds per-provider circuit state, keyed by descriptor name. One
// set may be shared across every chain talking to the same providers, so an
// outage observed through one feed opens the breaker for all feeds the
// provider serves.
type Breakers struct {
	mu     sync.Mutex
	states map[string]*breakerState
}

// NewBreakers creates an empty breaker set.
func NewBreakers() *Breakers {
	return &Breakers{states: make(map[string]*breakerState)}
}

func (b *Breakers) inCooldown(name string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[name]
	return ok && now.Before(st.cooldownUntil)
}

// recordFault counts one fault and reports the cooldown deadline when it
// tripped the breaker.
func (b *Breakers) recordFault(name string, threshold int, cooldown time.Duration, now time.Time) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[name]
	if !ok {
		st = &breakerState{}
		b.states[name] = st
	}
	st.consecutiveFailures++
	if st.consecutiveFailures >= threshold {
		st.cooldownUntil = now.Add(cooldown)
		st.consecutiveFailures = 0
		return st.cooldownUntil, true
	}
	return time.Time{}, false
}

func (b *Breakers) clearFaults(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[name]; ok {
		st.consecutiveFailures = 0
	}
}

type entry struct {
	client source.Client
	desc   source.Descriptor
}

// Chain resolves a feed by walking its sources in priority order.
type Chain struct {
	feed       model.Feed
	policy     Policy
	threshold  int
	cooldown   time.Duration
	historical source.Client
	breakers   *Breakers
	sources    []*entry

	log logger.Logger
	now func() time.Time
}

// Option tweaks chain construction.
type Option func(*Chain)

// WithPolicy selects the exhaustion policy (default FailClosed).
func WithPolicy(p Policy) Option { return func(c *Chain) { c.policy = p } }

// WithBreaker sets the consecutive-failure threshold and cooldown period.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Chain) { c.threshold, c.cooldown = threshold, cooldown }
}

// WithHistorical installs the archive source used under FailOpen.
func WithHistorical(h source.Client) Option { return func(c *Chain) { c.historical = h } }

// WithSharedBreakers makes the chain record circuit state in the given set
// instead of a private one, tying breaker trips to the provider rather than
// the (provider, feed) pair.
func WithSharedBreakers(b *Breakers) Option { return func(c *Chain) { c.breakers = b } }

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option { return func(c *Chain) { c.now = now } }

// New builds a chain over the given clients, ordered by descriptor priority.
func New(feed model.Feed, clients []source.Client, log logger.Logger, opts ...Option) *Chain {
	c := &Chain{
		feed:      feed,
		threshold: 3,
		cooldown:  5 * time.Minute,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breakers == nil {
		c.breakers = NewBreakers()
	}
	for _, cl := range clients {
		c.sources = append(c.sources, &entry{client: cl, desc: cl.Descriptor()})
	}
	for i := 1; i < len(c.sources); i++ {
		for j := i; j > 0 && c.sources[j].desc.Priority < c.sources[j-1].desc.Priority; j-- {
			c.sources[j], c.sources[j-1] = c.sources[j-1], c.sources[j]
		}
	}
	return c
}

// Resolve tries each source in priority order and returns the first
// successful result tagged with its provenance. Sources in cooldown and
// sources whose lookahead cannot reach the window are skipped without a call.
// Connectivity and auth failures trip the breaker; absence of data does not.
func (c *Chain) Resolve(ctx context.Context, window model.Window) (source.FetchResult, error) {
	var attempts []Attempt
	for i, e := range c.sources {
		if la := e.desc.MaxLookahead; la > 0 && !window.Start.Before(c.now().Add(la)) {
			attempts = append(attempts, Attempt{Source: e.desc.Name, Err: fmt.Errorf("window starts beyond %s lookahead", la)})
			continue
		}
		if c.breakers.inCooldown(e.desc.Name, c.now()) {
			attempts = append(attempts, Attempt{Source: e.desc.Name, Err: fmt.Errorf("in cooldown")})
			continue
		}
		res, err := c.fetchOne(ctx, e, window)
		if err == nil {
			c.breakers.clearFaults(e.desc.Name)
			mode := model.ProvenanceLive
			if i > 0 {
				mode = model.ProvenanceFallback
			}
			res.Series.MarkProvenance(e.desc.Name, mode)
			return res, nil
		}
		attempts = append(attempts, Attempt{Source: e.desc.Name, Err: err})
		// No-data and schema errors are not faults: they do not move the
		// breaker in either direction.
		if source.IsFault(err) {
			if until, tripped := c.breakers.recordFault(e.desc.Name, c.threshold, c.cooldown, c.now()); tripped {
				c.log.Warnf("source %s for %s entering cooldown until %s",
					e.desc.Name, c.feed.Name, until.Format(time.RFC3339))
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	if c.policy == FailOpen && c.historical != nil && ctx.Err() == nil {
		res, err := c.fetchOne(ctx, &entry{client: c.historical, desc: c.historical.Descriptor()}, window)
		if err == nil {
			res.Series.MarkProvenance(c.historical.Descriptor().Name, model.ProvenanceFallback)
			return res, nil
		}
		attempts = append(attempts, Attempt{Source: c.historical.Descriptor().Name, Err: err})
	}
	return source.FetchResult{}, &ExhaustedError{Feed: c.feed.Name, Window: window, Attempts: attempts}
}

func (c *Chain) fetchOne(ctx context.Context, e *entry, window model.Window) (source.FetchResult, error) {
	fctx := ctx
	if e.desc.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.desc.Timeout)
		defer cancel()
	}
	start := c.now()
	series, err := e.client.Fetch(fctx, c.feed.Name, window)
	latency := c.now().Sub(start)
	if err != nil {
		return source.FetchResult{}, err
	}
	return source.FetchResult{Series: series, Source: e.desc, Latency: latency}, nil
}

// Feed returns the feed this chain resolves.
func (c *Chain) Feed() model.Feed { return c.feed }
