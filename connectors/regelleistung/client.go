// Package regelleistung fetches German balancing-market tender results: FCR
// capacity, aFRR capacity and aFRR energy prices. Tenders are published per
// delivery date, so one Fetch issues one request per calendar day the window
// touches.
package regelleistung

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

const defaultBaseURL = "https://www.regelleistung.net/apps/cpp-publisher"

// slotStartHours maps 4-hour product slot suffixes onto block start hours.
var slotStartHours = map[string]int{
	"00_04": 0,
	"04_08": 4,
	"08_12": 8,
	"12_16": 12,
	"16_20": 16,
	"20_24": 20,
}

// Config configures the tender-results client.
type Config struct {
	BaseURL  string        `json:"base_url"`
	Priority int           `json:"priority"`
	Timeout  time.Duration `json:"timeout"`
}

// Client serves the FCR and aFRR tender-result feeds.
type Client struct {
	http *http.Client
	base string
	desc source.Descriptor
}

// New builds a regelleistung.net client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		base: cfg.BaseURL,
		desc: source.Descriptor{
			Name: "regelleistung",
			Feeds: []model.FeedName{
				model.FeedFCR,
				model.FeedAFRRCapacityPos,
				model.FeedAFRRCapacityNeg,
				model.FeedAFRREnergyPos,
				model.FeedAFRREnergyNeg,
			},
			Priority:     cfg.Priority,
			Timeout:      cfg.Timeout,
			MaxLookahead: 48 * time.Hour,
			Budget:       source.Budget{MaxConcurrent: 2, MinCallInterval: 200 * time.Millisecond},
		},
	}
}

// Descriptor implements source.Client.
func (c *Client) Descriptor() source.Descriptor { return c.desc }

// tenderRecord is one product row of a tender-results overview. The price
// columns are market-specific; absent columns decode as nil.
type tenderRecord struct {
	Product                 string   `json:"product"`
	SettlementCapacityPrice *float64 `json:"settlementCapacityPrice"`
	AverageCapacityPrice    *float64 `json:"averageCapacityPrice"`
	AverageEnergyPrice      *float64 `json:"averageEnergyPrice"`
}

type tenderResponse struct {
	Date    string         `json:"date"`
	Records []tenderRecord `json:"records"`
}

// marketQuery returns the market and productTypes parameters for a feed.
func marketQuery(feed model.FeedName) (market, productTypes string, ok bool) {
	switch feed {
	case model.FeedFCR:
		return "CAPACITY", "FCR", true
	case model.FeedAFRRCapacityPos, model.FeedAFRRCapacityNeg:
		return "CAPACITY", "aFRR", true
	case model.FeedAFRREnergyPos, model.FeedAFRREnergyNeg:
		return "ENERGY", "aFRR", true
	}
	return "", "", false
}

// Fetch implements source.Client.
func (c *Client) Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error) {
	market, productTypes, ok := marketQuery(feed)
	if !ok {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	var points []model.Point
	for day := window.Start.UTC().Truncate(24 * time.Hour); day.Before(window.End); day = day.AddDate(0, 0, 1) {
		resp, err := c.fetchDay(ctx, day, market, productTypes)
		if err != nil {
			return model.TimeSeries{}, err
		}
		pts, err := c.parse(feed, day, resp)
		if err != nil {
			return model.TimeSeries{}, err
		}
		points = append(points, pts...)
	}

	native := nativeResolution(feed)
	kept := points[:0]
	for _, p := range points {
		// Keep samples whose native interval intersects the window.
		if p.Time.Add(native).After(window.Start) && p.Time.Before(window.End) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Time.Before(kept[j].Time) })

	return model.TimeSeries{
		Feed:       feed,
		Unit:       feedUnit(feed),
		Resolution: native,
		Points:     kept,
	}, nil
}

func (c *Client) fetchDay(ctx context.Context, day time.Time, market, productTypes string) (*tenderResponse, error) {
	q := url.Values{}
	q.Set("date", day.Format("2006-01-02"))
	q.Set("market", market)
	q.Set("productTypes", productTypes)
	q.Set("exportFormat", "json")
	endpoint := c.base + "/api/v1/download/tenders/resultsoverview?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Tenders for this delivery date are not published yet.
		return &tenderResponse{Date: day.Format("2006-01-02")}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &source.UnavailableError{
			Source: c.desc.Name,
			Err:    fmt.Errorf("status %d for %s %s", resp.StatusCode, market, day.Format("2006-01-02")),
		}
	}

	var payload tenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &source.SchemaError{Source: c.desc.Name, Detail: "decode tender overview", Err: err}
	}
	return &payload, nil
}

// parse extracts the feed's price points from one day's tender records.
// Capacity products carry a 4-hour slot in their name (POS_00_04); energy
// products carry a 15-minute slot index (NEG_001 is 00:00).
func (c *Client) parse(feed model.FeedName, day time.Time, resp *tenderResponse) ([]model.Point, error) {
	var points []model.Point
	for _, rec := range resp.Records {
		if !directionMatches(feed, rec.Product) {
			continue
		}
		price, ok := recordPrice(feed, rec)
		if !ok {
			return nil, &source.SchemaError{
				Source: c.desc.Name,
				Detail: fmt.Sprintf("product %s has no price column for %s", rec.Product, feed),
			}
		}
		t, err := productTime(feed, day, rec.Product)
		if err != nil {
			return nil, &source.SchemaError{Source: c.desc.Name, Detail: err.Error()}
		}
		points = append(points, model.Point{Time: t, Value: price})
	}
	return points, nil
}

func directionMatches(feed model.FeedName, product string) bool {
	switch feed {
	case model.FeedAFRRCapacityPos, model.FeedAFRREnergyPos:
		return strings.HasPrefix(product, "POS")
	case model.FeedAFRRCapacityNeg, model.FeedAFRREnergyNeg:
		return strings.HasPrefix(product, "NEG")
	}
	// FCR products are symmetric (NEGPOS_00_04).
	return true
}

func recordPrice(feed model.FeedName, rec tenderRecord) (float64, bool) {
	var p *float64
	switch feed {
	case model.FeedFCR:
		p = rec.SettlementCapacityPrice
	case model.FeedAFRRCapacityPos, model.FeedAFRRCapacityNeg:
		p = rec.AverageCapacityPrice
	default:
		p = rec.AverageEnergyPrice
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

func productTime(feed model.FeedName, day time.Time, product string) (time.Time, error) {
	switch feed {
	case model.FeedAFRREnergyPos, model.FeedAFRREnergyNeg:
		// POS_001 .. POS_096: slot n starts at (n-1)*15min.
		parts := strings.Split(product, "_")
		if len(parts) != 2 {
			return time.Time{}, fmt.Errorf("unparseable energy product %q", product)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 || n > 96 {
			return time.Time{}, fmt.Errorf("unparseable energy slot %q", product)
		}
		return day.Add(time.Duration(n-1) * 15 * time.Minute), nil
	}
	for slot, hour := range slotStartHours {
		if strings.Contains(product, slot) {
			return day.Add(time.Duration(hour) * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("no 4h slot in product %q", product)
}

func nativeResolution(feed model.FeedName) time.Duration {
	switch feed {
	case model.FeedAFRREnergyPos, model.FeedAFRREnergyNeg:
		return 15 * time.Minute
	}
	return 4 * time.Hour
}

func feedUnit(feed model.FeedName) string {
	switch feed {
	case model.FeedAFRREnergyPos, model.FeedAFRREnergyNeg:
		return "EUR/MWh"
	}
	return "EUR/MW"
}
