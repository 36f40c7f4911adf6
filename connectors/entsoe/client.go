// Package entsoe fetches day-ahead prices from the ENTSO-E Transparency
// Platform. It needs a security token and sits behind Energy-Charts in the
// day-ahead chain.
package entsoe

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

const defaultBaseURL = "https://web-api.tp.entsoe.eu/api"

// documentType A44 is the day-ahead price publication document.
const documentTypePrices = "A44"

// eicByZone maps zone codes onto ENTSO-E area EIC codes.
var eicByZone = map[string]string{
	"DE_LU": "10Y1001A1001A82H",
	"AT":    "10YAT-APG------L",
	"CH":    "10YCH-SWISSGRIDZ",
	"HU":    "10YHU-MAVIR----U",
	"CZ":    "10YCZ-CEPS-----N",
}

// Config configures the ENTSO-E client.
type Config struct {
	BaseURL  string        `json:"base_url"`
	Token    string        `json:"token"`
	Zone     string        `json:"zone"`
	Priority int           `json:"priority"`
	Timeout  time.Duration `json:"timeout"`
}

// Client serves the day-ahead price feed from the Transparency Platform.
type Client struct {
	http  *http.Client
	base  string
	token string
	eic   string
	desc  source.Descriptor
}

// New builds an ENTSO-E client. The token is mandatory; the platform rejects
// anonymous queries.
func New(cfg Config) (*Client, error) {
	eic, ok := eicByZone[cfg.Zone]
	if !ok {
		return nil, fmt.Errorf("entsoe: no EIC mapping for zone %q", cfg.Zone)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("entsoe: security token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		http:  &http.Client{Timeout: cfg.Timeout},
		base:  cfg.BaseURL,
		token: cfg.Token,
		eic:   eic,
		desc: source.Descriptor{
			Name:         "entsoe",
			Feeds:        []model.FeedName{model.FeedDayAhead},
			Priority:     cfg.Priority,
			Timeout:      cfg.Timeout,
			MaxLookahead: 36 * time.Hour,
		},
	}, nil
}

// Descriptor implements source.Client.
func (c *Client) Descriptor() source.Descriptor { return c.desc }

// marketDocument is the subset of Publication_MarketDocument we read.
type marketDocument struct {
	XMLName xml.Name     `xml:"Publication_MarketDocument"`
	Series  []timeSeries `xml:"TimeSeries"`
}

type timeSeries struct {
	Periods []period `xml:"Period"`
}

type period struct {
	Interval   timeInterval `xml:"timeInterval"`
	Resolution string       `xml:"resolution"`
	Points     []pricePoint `xml:"Point"`
}

type timeInterval struct {
	Start string `xml:"start"`
	End   string `xml:"end"`
}

type pricePoint struct {
	Position int     `xml:"position"`
	Amount   float64 `xml:"price.amount"`
}

// acknowledgement is returned instead of a market document when the query is
// rejected, including for bad tokens.
type acknowledgement struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reason  struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}

// Fetch implements source.Client.
func (c *Client) Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error) {
	if feed != model.FeedDayAhead {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	q := url.Values{}
	q.Set("securityToken", c.token)
	q.Set("documentType", documentTypePrices)
	q.Set("in_Domain", c.eic)
	q.Set("out_Domain", c.eic)
	q.Set("periodStart", window.Start.UTC().Format("200601021504"))
	q.Set("periodEnd", window.End.UTC().Format("200601021504"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+q.Encode(), nil)
	if err != nil {
		return model.TimeSeries{}, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.TimeSeries{}, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.TimeSeries{}, &source.AuthError{
			Source: c.desc.Name,
			Err:    fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return model.TimeSeries{}, &source.UnavailableError{
			Source: c.desc.Name,
			Err:    fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return model.TimeSeries{}, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}

	var doc marketDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		// A rejected query answers 200 with an acknowledgement document
		// instead of a market document.
		var ack acknowledgement
		if ackErr := xml.Unmarshal(raw, &ack); ackErr == nil {
			return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
		}
		return model.TimeSeries{}, &source.SchemaError{Source: c.desc.Name, Detail: "decode market document", Err: err}
	}
	if len(doc.Series) == 0 {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	var points []model.Point
	for _, ts := range doc.Series {
		for _, p := range ts.Periods {
			start, err := time.Parse("2006-01-02T15:04Z", p.Interval.Start)
			if err != nil {
				return model.TimeSeries{}, &source.SchemaError{Source: c.desc.Name, Detail: "parse period start", Err: err}
			}
			step, err := parseResolution(p.Resolution)
			if err != nil {
				return model.TimeSeries{}, &source.SchemaError{Source: c.desc.Name, Detail: "parse resolution", Err: err}
			}
			for _, pt := range p.Points {
				t := start.Add(time.Duration(pt.Position-1) * step).UTC()
				if !t.Before(window.Start) && t.Before(window.End) {
					points = append(points, model.Point{Time: t, Value: pt.Amount})
				}
			}
		}
	}
	if len(points) == 0 {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	res := 15 * time.Minute
	if len(points) > 1 {
		res = points[1].Time.Sub(points[0].Time)
	}
	return model.TimeSeries{
		Feed:       feed,
		Unit:       "EUR/MWh",
		Resolution: res,
		Points:     points,
	}, nil
}

func parseResolution(s string) (time.Duration, error) {
	switch s {
	case "PT15M":
		return 15 * time.Minute, nil
	case "PT30M":
		return 30 * time.Minute, nil
	case "PT60M", "PT1H":
		return time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported resolution %q", s)
}
