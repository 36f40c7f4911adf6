package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

var day = time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)

func forecastJSON(start time.Time, steps int) map[string]any {
	list := make([]map[string]any, 0, steps)
	for i := 0; i < steps; i++ {
		list = append(list, map[string]any{
			"dt":     start.Add(time.Duration(i) * 3 * time.Hour).Unix(),
			"main":   map[string]any{"temp": 15.0 + float64(i), "humidity": 60.0},
			"clouds": map[string]any{"all": 25.0},
			"wind":   map[string]any{"speed": 6.5, "deg": 240.0},
		})
	}
	return map[string]any{"cod": "200", "list": list}
}

func forecastServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		json.NewEncoder(w).Encode(forecastJSON(day, 16))
	}))
}

func TestFetchWeatherFeeds(t *testing.T) {
	srv := forecastServer(t, nil)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Lat: 52.52, Lon: 13.4})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w := model.Window{Start: day, End: day.Add(12 * time.Hour)}

	temp, err := c.Fetch(context.Background(), model.FeedTemperature, w)
	if err != nil {
		t.Fatalf("fetch temperature: %v", err)
	}
	// Twelve hours at a 3-hour step.
	if temp.Len() != 4 {
		t.Fatalf("temperature points = %d, want 4", temp.Len())
	}
	if temp.Resolution != 3*time.Hour {
		t.Fatalf("resolution = %s", temp.Resolution)
	}
	if temp.Points[0].Value != 15 {
		t.Fatalf("first temperature = %v", temp.Points[0].Value)
	}

	wind, err := c.Fetch(context.Background(), model.FeedWindSpeed, w)
	if err != nil {
		t.Fatalf("fetch wind: %v", err)
	}
	if wind.Points[0].Value != 6.5 {
		t.Fatalf("wind speed = %v", wind.Points[0].Value)
	}
	if wind.Unit != "m/s" {
		t.Fatalf("wind unit = %q", wind.Unit)
	}
}

// All six feeds come out of one payload; the snapshot keeps a fan-out from
// issuing six identical requests.
func TestFetchSharesSnapshotAcrossFeeds(t *testing.T) {
	var calls int32
	srv := forecastServer(t, &calls)
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k", Lat: 52.52, Lon: 13.4})
	w := model.Window{Start: day, End: day.Add(12 * time.Hour)}
	for _, f := range model.WeatherFeeds() {
		if _, err := c.Fetch(context.Background(), f.Name, w); err != nil {
			t.Fatalf("fetch %s: %v", f.Name, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("provider requests = %d, want 1", got)
	}
}

func TestSnapshotExpires(t *testing.T) {
	var calls int32
	srv := forecastServer(t, &calls)
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k", SnapshotTTL: 5 * time.Minute})
	now := day
	c.now = func() time.Time { return now }
	w := model.Window{Start: day, End: day.Add(12 * time.Hour)}

	c.Fetch(context.Background(), model.FeedTemperature, w)
	now = now.Add(10 * time.Minute)
	c.Fetch(context.Background(), model.FeedTemperature, w)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("provider requests = %d, want 2 after TTL expiry", got)
	}
}

// Irradiance is derived, not fetched: daylight cloud cover must yield a
// positive value and midnight zero.
func TestFetchDerivedIrradiance(t *testing.T) {
	srv := forecastServer(t, nil)
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k", Lat: 52.52, Lon: 13.4})
	s, err := c.Fetch(context.Background(), model.FeedSolarIrradiance,
		model.Window{Start: day, End: day.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if s.Points[0].Value != 0 {
		t.Fatalf("midnight irradiance = %v, want 0", s.Points[0].Value)
	}
	noon := s.Points[4] // 12:00
	if !noon.Time.Equal(day.Add(12 * time.Hour)) {
		t.Fatalf("unexpected grid: %s", noon.Time)
	}
	if noon.Value <= 0 {
		t.Fatalf("noon irradiance = %v, want positive", noon.Value)
	}
}

func TestFetchAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Fetch(context.Background(), model.FeedTemperature,
		model.Window{Start: day, End: day.Add(12 * time.Hour)})
	var ae *source.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("want AuthError, got %v", err)
	}
}

func TestFetchUnknownFeed(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://unused", APIKey: "k"})
	_, err := c.Fetch(context.Background(), model.FeedDayAhead,
		model.Window{Start: day, End: day.Add(12 * time.Hour)})
	if !source.IsNoData(err) {
		t.Fatalf("want NoDataError, got %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("missing api key accepted")
	}
}
