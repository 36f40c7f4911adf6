// Package archive serves feeds from locally stored historical data. It is
// the last rung of every fallback chain and the fail-open source: when no
// live provider can answer, the nearest archived delivery day stands in.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/source"
)

// Name is the provenance tag archived data carries.
const Name = "historical"

// Config configures the archive.
type Config struct {
	// Dir holds one subdirectory per feed with YYYY-MM-DD.json files of
	// wire records inside.
	Dir      string `json:"dir"`
	Priority int    `json:"priority"`
}

// Store reads archived feed days from disk.
type Store struct {
	dir   string
	feeds map[model.FeedName]model.Feed
	desc  source.Descriptor
}

// New builds an archive store over the given feeds.
func New(cfg Config, feeds []model.Feed) *Store {
	byName := make(map[model.FeedName]model.Feed, len(feeds))
	names := make([]model.FeedName, 0, len(feeds))
	for _, f := range feeds {
		byName[f.Name] = f
		names = append(names, f.Name)
	}
	return &Store{
		dir:   cfg.Dir,
		feeds: byName,
		desc: source.Descriptor{
			Name:         Name,
			Feeds:        names,
			Priority:     cfg.Priority,
			MaxLookahead: 365 * 24 * time.Hour,
		},
	}
}

// Descriptor implements source.Client.
func (s *Store) Descriptor() source.Descriptor { return s.desc }

// Fetch implements source.Client. Each requested day resolves to its own
// archive file, or to the nearest archived day with timestamps shifted onto
// the requested one.
func (s *Store) Fetch(ctx context.Context, feed model.FeedName, window model.Window) (model.TimeSeries, error) {
	def, ok := s.feeds[feed]
	if !ok {
		return model.TimeSeries{}, &source.NoDataError{Source: Name, Feed: feed, Window: window}
	}

	var points []model.Point
	for day := window.Start.UTC().Truncate(24 * time.Hour); day.Before(window.End); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return model.TimeSeries{}, &source.UnavailableError{Source: Name, Err: err}
		}
		pts, err := s.loadDay(def, day)
		if err != nil {
			return model.TimeSeries{}, err
		}
		points = append(points, pts...)
	}

	kept := points[:0]
	for _, p := range points {
		if p.Time.Add(def.NativeResolution).After(window.Start) && p.Time.Before(window.End) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return model.TimeSeries{}, &source.NoDataError{Source: Name, Feed: feed, Window: window}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Time.Before(kept[j].Time) })

	return model.TimeSeries{
		Feed:       feed,
		Unit:       def.Unit,
		Resolution: def.NativeResolution,
		Points:     kept,
	}, nil
}

// loadDay reads the archive file for the given day, falling back to the
// nearest archived day and shifting its timestamps onto the requested one.
func (s *Store) loadDay(def model.Feed, day time.Time) ([]model.Point, error) {
	path := filepath.Join(s.dir, string(def.Name), day.Format("2006-01-02")+".json")
	if _, err := os.Stat(path); err != nil {
		nearest, ok := s.nearestDay(def.Name, day)
		if !ok {
			return nil, &source.NoDataError{
				Source: Name,
				Feed:   def.Name,
				Window: model.Window{Start: day, End: day.AddDate(0, 0, 1)},
			}
		}
		pts, err := s.readFile(def, s.dayPath(def.Name, nearest))
		if err != nil {
			return nil, err
		}
		shift := day.Sub(nearest)
		for i := range pts {
			pts[i].Time = pts[i].Time.Add(shift)
		}
		return pts, nil
	}
	return s.readFile(def, path)
}

func (s *Store) dayPath(feed model.FeedName, day time.Time) string {
	return filepath.Join(s.dir, string(feed), day.Format("2006-01-02")+".json")
}

// nearestDay scans the feed's directory for the archived day closest to the
// requested one.
func (s *Store) nearestDay(feed model.FeedName, day time.Time) (time.Time, bool) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(feed)))
	if err != nil {
		return time.Time{}, false
	}
	var best time.Time
	bestDelta := time.Duration(-1)
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		d, err := time.Parse("2006-01-02", name[:len(name)-len(".json")])
		if err != nil {
			continue
		}
		delta := day.Sub(d)
		if delta < 0 {
			delta = -delta
		}
		if bestDelta < 0 || delta < bestDelta {
			best, bestDelta = d, delta
		}
	}
	return best, bestDelta >= 0
}

func (s *Store) readFile(def model.Feed, path string) ([]model.Point, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &source.UnavailableError{Source: Name, Err: err}
	}
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &source.SchemaError{Source: Name, Detail: "decode " + path, Err: err}
	}

	points := make([]model.Point, 0, len(records))
	for i, rec := range records {
		tsRaw, ok := rec["timestamp"]
		if !ok {
			return nil, &source.SchemaError{Source: Name, Detail: fmt.Sprintf("%s: record %d has no timestamp", path, i)}
		}
		var tsStr string
		if err := json.Unmarshal(tsRaw, &tsStr); err != nil {
			return nil, &source.SchemaError{Source: Name, Detail: fmt.Sprintf("%s: record %d timestamp", path, i), Err: err}
		}
		t, err := time.Parse(model.WireTimeLayout, tsStr)
		if err != nil {
			return nil, &source.SchemaError{Source: Name, Detail: fmt.Sprintf("%s: record %d timestamp", path, i), Err: err}
		}
		valRaw, ok := rec[def.WireKey]
		if !ok {
			return nil, &source.SchemaError{Source: Name, Detail: fmt.Sprintf("%s: record %d has no %q value", path, i, def.WireKey)}
		}
		var v float64
		if err := json.Unmarshal(valRaw, &v); err != nil {
			return nil, &source.SchemaError{Source: Name, Detail: fmt.Sprintf("%s: record %d value", path, i), Err: err}
		}
		points = append(points, model.Point{Time: t.UTC(), Value: v})
	}
	return points, nil
}
