// Package source defines the contract every external data provider client
// implements, plus the typed failure taxonomy the fallback layer branches on.
package source

import (
	"context"
	"time"

	"github.com/gridkey/horizon/core/model"
)

// Client fetches one raw series for a feed over a half-open window. A client
// performs the minimal provider calls the window requires and never retries;
// retry and fallback policy belongs to the chain that owns the client.
type Client interface {
	// Fetch returns the series at the provider's native resolution. The
	// chain never asks for windows entirely beyond the provider's
	// maximum lookahead.
	Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error)
	// Descriptor exposes the provider metadata used for provenance,
	// ordering and circuit breaking.
	Descriptor() Descriptor
}

// Descriptor is static provider metadata.
type Descriptor struct {
	// Name identifies the provider in provenance tags and error reports.
	Name string
	// Feeds lists the feed names the provider can serve.
	Feeds []model.FeedName
	// Priority ranks the provider within a feed's fallback chain;
	// lower is tried first.
	Priority int
	// Timeout bounds a single fetch call.
	Timeout time.Duration
	// MaxLookahead is how far past now the provider has data. Windows
	// starting beyond it are skipped without a call.
	MaxLookahead time.Duration
	// Budget is the provider's rate-limit discipline.
	Budget Budget
}

// Supports reports whether the descriptor covers the feed.
func (d Descriptor) Supports(feed model.FeedName) bool {
	for _, f := range d.Feeds {
		if f == feed {
			return true
		}
	}
	return false
}

// FetchResult is the outcome of one resolved fetch attempt.
type FetchResult struct {
	Series  model.TimeSeries
	Source  Descriptor
	Latency time.Duration
}
