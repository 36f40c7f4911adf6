package source

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/gridkey/horizon/core/model"
)

// Budget is a provider's rate-limit discipline: how many calls may be
// outstanding at once, and the minimum spacing between call starts.
type Budget struct {
	MaxConcurrent   int
	MinCallInterval time.Duration
}

// Limited wraps a client so every fetch honors the descriptor's budget, even
// under concurrent horizon requests. A zero budget passes calls through.
func Limited(c Client) Client {
	b := c.Descriptor().Budget
	if b.MaxConcurrent <= 0 && b.MinCallInterval <= 0 {
		return c
	}
	lc := &limitedClient{inner: c}
	if b.MaxConcurrent > 0 {
		lc.sem = make(chan struct{}, b.MaxConcurrent)
	}
	if b.MinCallInterval > 0 {
		lc.limiter = rate.NewLimiter(rate.Every(b.MinCallInterval), 1)
	}
	return lc
}

type limitedClient struct {
	inner   Client
	sem     chan struct{}
	limiter *rate.Limiter
}

func (l *limitedClient) Descriptor() Descriptor { return l.inner.Descriptor() }

func (l *limitedClient) Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return model.TimeSeries{}, &UnavailableError{Source: l.inner.Descriptor().Name, Err: ctx.Err()}
		}
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return model.TimeSeries{}, &UnavailableError{Source: l.inner.Descriptor().Name, Err: err}
		}
	}
	return l.inner.Fetch(ctx, feed, window)
}
