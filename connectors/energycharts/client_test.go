package energycharts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func priceServer(t *testing.T, fn http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(fn)
}

func TestFetchDayAhead(t *testing.T) {
	var gotQuery string
	srv := priceServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		var secs, prices []string
		for i := 0; i < 8; i++ {
			secs = append(secs, fmt.Sprintf("%d", day.Add(time.Duration(i)*15*time.Minute).Unix()))
			prices = append(prices, fmt.Sprintf("%.2f", 39.91+float64(i)))
		}
		fmt.Fprintf(w, `{"unix_seconds":[%s],"price":[%s],"unit":"EUR/MWh"}`,
			strings.Join(secs, ","), strings.Join(prices, ","))
	})
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Zone: "DE_LU"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w := model.Window{Start: day, End: day.Add(time.Hour)}
	s, err := c.Fetch(context.Background(), model.FeedDayAhead, w)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(gotQuery, "bzn=DE-LU") {
		t.Fatalf("query missing bidding zone: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "start=2026-03-01") {
		t.Fatalf("query missing start date: %s", gotQuery)
	}
	// Eight quarter hours served, only the four inside the window kept.
	if s.Len() != 4 {
		t.Fatalf("points = %d, want 4", s.Len())
	}
	if s.Points[0].Value != 39.91 {
		t.Fatalf("first price = %v", s.Points[0].Value)
	}
	if s.Resolution != 15*time.Minute {
		t.Fatalf("resolution = %s", s.Resolution)
	}
}

// Slots not yet cleared arrive as nulls and are skipped, not zeroed.
func TestFetchSkipsNullPrices(t *testing.T) {
	srv := priceServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"unix_seconds":[%d,%d,%d],"price":[39.91,null,41.05],"unit":"EUR/MWh"}`,
			day.Unix(), day.Add(15*time.Minute).Unix(), day.Add(30*time.Minute).Unix())
	})
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Zone: "DE_LU"})
	s, err := c.Fetch(context.Background(), model.FeedDayAhead, model.Window{Start: day, End: day.Add(time.Hour)})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("points = %d, want 2", s.Len())
	}
}

func TestFetchServerError(t *testing.T) {
	srv := priceServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	})
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Zone: "DE_LU"})
	_, err := c.Fetch(context.Background(), model.FeedDayAhead, model.Window{Start: day, End: day.Add(time.Hour)})
	var ua *source.UnavailableError
	if !errors.As(err, &ua) {
		t.Fatalf("want UnavailableError, got %v", err)
	}
}

func TestFetchLengthMismatch(t *testing.T) {
	srv := priceServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"unix_seconds":[%d,%d],"price":[39.91]}`, day.Unix(), day.Add(15*time.Minute).Unix())
	})
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Zone: "DE_LU"})
	_, err := c.Fetch(context.Background(), model.FeedDayAhead, model.Window{Start: day, End: day.Add(time.Hour)})
	var se *source.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("want SchemaError, got %v", err)
	}
}

func TestFetchEmptyWindow(t *testing.T) {
	srv := priceServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unix_seconds":[],"price":[]}`)
	})
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Zone: "DE_LU"})
	_, err := c.Fetch(context.Background(), model.FeedDayAhead, model.Window{Start: day, End: day.Add(time.Hour)})
	if !source.IsNoData(err) {
		t.Fatalf("want NoDataError, got %v", err)
	}
}

func TestFetchUnsupportedFeed(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://unused", Zone: "DE_LU"})
	_, err := c.Fetch(context.Background(), model.FeedFCR, model.Window{Start: day, End: day.Add(time.Hour)})
	if !source.IsNoData(err) {
		t.Fatalf("want NoDataError for unsupported feed, got %v", err)
	}
}

func TestNewRejectsUnknownZone(t *testing.T) {
	if _, err := New(Config{Zone: "XX"}); err == nil {
		t.Fatalf("unknown zone accepted")
	}
}
