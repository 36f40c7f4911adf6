// Package openweather fetches the 5-day/3-hour OpenWeatherMap forecast and
// exposes it as the six weather feeds. Solar irradiance is not part of the
// provider's payload; it is derived from cloud cover and solar geometry.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gridkey/horizon/core/generation"
	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/2.5"
	nativeStep     = 3 * time.Hour
)

// Config configures the forecast client.
type Config struct {
	BaseURL  string        `json:"base_url"`
	APIKey   string        `json:"api_key"`
	Lat      float64       `json:"lat"`
	Lon      float64       `json:"lon"`
	Priority int           `json:"priority"`
	Timeout  time.Duration `json:"timeout"`
	// SnapshotTTL bounds how long one forecast response is reused across
	// the per-feed fetches of a single assembly fan-out.
	SnapshotTTL time.Duration `json:"snapshot_ttl"`
}

// Client serves the weather feed group from one forecast endpoint. All six
// feeds come out of the same response, so the client keeps a short-lived
// snapshot instead of issuing six identical requests per assembly.
type Client struct {
	http *http.Client
	base string
	key  string
	lat  float64
	lon  float64
	ttl  time.Duration
	desc source.Descriptor

	mu        sync.Mutex
	snapshot  []forecastItem
	fetchedAt time.Time
	now       func() time.Time
}

// New builds an OpenWeatherMap client. The API key is mandatory.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openweather: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	feeds := make([]model.FeedName, 0, 6)
	for _, f := range model.WeatherFeeds() {
		feeds = append(feeds, f.Name)
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		base: cfg.BaseURL,
		key:  cfg.APIKey,
		lat:  cfg.Lat,
		lon:  cfg.Lon,
		ttl:  cfg.SnapshotTTL,
		desc: source.Descriptor{
			Name:         "openweathermap",
			Feeds:        feeds,
			Priority:     cfg.Priority,
			Timeout:      cfg.Timeout,
			MaxLookahead: 5 * 24 * time.Hour,
			Budget:       source.Budget{MaxConcurrent: 1, MinCallInterval: time.Second},
		},
		now: time.Now,
	}, nil
}

// Descriptor implements source.Client.
func (c *Client) Descriptor() source.Descriptor { return c.desc }

// forecastResponse is the subset of /forecast we read.
type forecastResponse struct {
	Cod  json.RawMessage `json:"cod"`
	List []struct {
		DT   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Clouds struct {
			All float64 `json:"all"`
		} `json:"clouds"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   float64 `json:"deg"`
		} `json:"wind"`
	} `json:"list"`
}

type forecastItem struct {
	Time     time.Time
	Temp     float64
	Humidity float64
	Clouds   float64
	Wind     float64
	WindDeg  float64
}

// Fetch implements source.Client.
func (c *Client) Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error) {
	var def model.Feed
	for _, f := range model.WeatherFeeds() {
		if f.Name == feed {
			def = f
			break
		}
	}
	if def.Name == "" {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	items, err := c.forecast(ctx)
	if err != nil {
		return model.TimeSeries{}, err
	}

	points := make([]model.Point, 0, len(items))
	for _, it := range items {
		// Keep samples whose native interval intersects the window so
		// interpolation has anchors at both boundaries.
		if !it.Time.Add(nativeStep).After(window.Start) || !it.Time.Before(window.End) {
			continue
		}
		points = append(points, model.Point{Time: it.Time, Value: c.value(feed, it)})
	}
	if len(points) == 0 {
		return model.TimeSeries{}, &source.NoDataError{Source: c.desc.Name, Feed: feed, Window: window}
	}

	return model.TimeSeries{
		Feed:       feed,
		Unit:       def.Unit,
		Resolution: nativeStep,
		Points:     points,
	}, nil
}

func (c *Client) value(feed model.FeedName, it forecastItem) float64 {
	switch feed {
	case model.FeedSolarIrradiance:
		return generation.Irradiance(c.lat, it.Time, it.Clouds)
	case model.FeedWindSpeed:
		return it.Wind
	case model.FeedWindDirection:
		return it.WindDeg
	case model.FeedTemperature:
		return it.Temp
	case model.FeedCloudCover:
		return it.Clouds
	default:
		return it.Humidity
	}
}

// forecast returns the current 3-hourly forecast, reusing the last response
// while it is younger than the snapshot TTL.
func (c *Client) forecast(ctx context.Context) ([]forecastItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.snapshot, nil
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", c.lat))
	q.Set("lon", fmt.Sprintf("%.4f", c.lon))
	q.Set("appid", c.key)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &source.UnavailableError{Source: c.desc.Name, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &source.AuthError{Source: c.desc.Name, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &source.UnavailableError{Source: c.desc.Name, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &source.SchemaError{Source: c.desc.Name, Detail: "decode forecast", Err: err}
	}
	if len(payload.List) == 0 {
		return nil, &source.SchemaError{Source: c.desc.Name, Detail: "forecast list is empty"}
	}

	items := make([]forecastItem, 0, len(payload.List))
	for _, e := range payload.List {
		items = append(items, forecastItem{
			Time:     time.Unix(e.DT, 0).UTC(),
			Temp:     e.Main.Temp,
			Humidity: e.Main.Humidity,
			Clouds:   e.Clouds.All,
			Wind:     e.Wind.Speed,
			WindDeg:  e.Wind.Deg,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Time.Before(items[j].Time) })
	c.snapshot = items
	c.fetchedAt = c.now()
	return items, nil
}
