// Package energycharts fetches day-ahead spot prices from the Energy-Charts
// public API. No API key is required, which makes it the primary day-ahead
// source; data originates from Bundesnetzagentur / SMARD.
package energycharts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

const defaultBaseURL = "https://api.energy-charts.info"

// bznByZone maps internal zone codes onto Energy-Charts bidding zones.
var bznByZone = map[string]string{
	"DE_LU": "DE-LU",
	"DE":    "DE-LU",
	"AT":    "AT",
	"CH":    "CH",
}

// Config configures the Energy-Charts client.
type Config struct {
	BaseURL  string        `json:"base_url"`
	Zone     string        `json:"zone"`
	Priority int           `json:"priority"`
	Timeout  time.Duration `json:"timeout"`
}

// Client serves the day-ahead price feed.
type Client struct {
	http *http.Client
	base string
	bzn  string
	desc source.Descriptor
}

// New builds an Energy-Charts client for the configured bidding zone.
func New(cfg Config) (*Client, error) {
	bzn, ok := bznByZone[cfg.Zone]
	if !ok {
		return nil, fmt.Errorf("energycharts: no bidding zone mapping for %q", cfg.Zone)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		base: cfg.BaseURL,
		bzn:  bzn,
		desc: source.Descriptor{
			Name:         "energy-charts",
			Feeds:        []model.FeedName{model.FeedDayAhead},
			Priority:     cfg.Priority,
			Timeout:      cfg.Timeout,
			MaxLookahead: 36 * time.Hour,
			Budget:       source.Budget{MaxConcurrent: 2, MinCallInterval: 100 * time.Millisecond},
		},
	}, nil
}

// Descriptor implements source.Client.
func (c *Client) Descriptor() source.Descriptor { return c.desc }

// priceResponse is the /price payload: parallel arrays of timestamps and
// prices, with nulls for slots not yet cleared.
type priceResponse struct {
	UnixSeconds []int64    `json:"unix_seconds"`
	Price       []*float64 `json:"price"`
	Unit        string     `json:"unit"`
}

// Fetch implements source.Client.
func (c *Client) Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error) {
	if feed != model.FeedDayAhead {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	q := url.Values{}
	q.Set("bzn", c.bzn)
	q.Set("start", window.Start.UTC().Format("2006-01-02"))
	q.Set("end", window.End.UTC().Format("2006-01-02"))
	endpoint := c.base + "/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.TimeSeries{}, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.TimeSeries{}, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.TimeSeries{}, &source.UnavailableError{
			Source: c.desc.Name,
			Err:    fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var payload priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.TimeSeries{}, &source.SchemaError{Source: c.desc.Name, Detail: "decode price response", Err: err}
	}
	if len(payload.UnixSeconds) != len(payload.Price) {
		return model.TimeSeries{}, &source.SchemaError{
			Source: c.desc.Name,
			Detail: fmt.Sprintf("unix_seconds/price length mismatch: %d vs %d", len(payload.UnixSeconds), len(payload.Price)),
		}
	}

	points := make([]model.Point, 0, len(payload.UnixSeconds))
	for i, sec := range payload.UnixSeconds {
		if payload.Price[i] == nil {
			continue
		}
		t := time.Unix(sec, 0).UTC()
		if !t.Before(window.Start) && t.Before(window.End) {
			points = append(points, model.Point{Time: t, Value: *payload.Price[i]})
		}
	}
	if len(points) == 0 {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	return model.TimeSeries{
		Feed:       feed,
		Unit:       "EUR/MWh",
		Resolution: 15 * time.Minute,
		Points:     points,
	}, nil
}
