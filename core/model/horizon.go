package model

import (
	"fmt"
	"time"
)

// Horizon defaults: a 48-hour window on the canonical grid, of which the
// first 24 hours are acted upon, rebuilt every 12 hours.
const (
	HorizonLength  = 48 * time.Hour
	ActiveWindow   = 24 * time.Hour
	RollingCadence = 12 * time.Hour
	// HorizonPoints is the number of canonical samples per horizon.
	HorizonPoints = int(HorizonLength / CanonicalResolution)
)

// Horizon is the window of data assembled for one optimization run.
type Horizon struct {
	Start   time.Time
	Length  time.Duration
	Active  time.Duration
	Cadence time.Duration
}

// NewHorizon builds a horizon with default lengths, snapping start onto the
// canonical grid.
func NewHorizon(start time.Time) Horizon {
	return Horizon{
		Start:   start.UTC().Truncate(CanonicalResolution),
		Length:  HorizonLength,
		Active:  ActiveWindow,
		Cadence: RollingCadence,
	}
}

// NewRollingHorizon builds a horizon rebuilt at the given cadence. The
// cadence sizes the cache segments, so ticks at a non-default cadence still
// share segment windows with their predecessors.
func NewRollingHorizon(start time.Time, cadence time.Duration) Horizon {
	h := NewHorizon(start)
	if cadence > 0 {
		h.Cadence = cadence
	}
	return h
}

// Window returns the full half-open horizon window.
func (h Horizon) Window() Window {
	return Window{Start: h.Start, End: h.Start.Add(h.Length)}
}

// ActiveWindow returns the leading sub-window the schedule acts upon.
func (h Horizon) ActiveWindow() Window {
	return Window{Start: h.Start, End: h.Start.Add(h.Active)}
}

// Points is the number of canonical samples the horizon spans.
func (h Horizon) Points() int { return h.Window().Points(CanonicalResolution) }

// Grid returns the canonical timestamp vector all assembled feeds must share.
func (h Horizon) Grid() []time.Time {
	n := h.Points()
	out := make([]time.Time, n)
	for i := range out {
		out[i] = h.Start.Add(time.Duration(i) * CanonicalResolution)
	}
	return out
}

// Segments splits the horizon into cadence-sized cache segments. On a
// rolling re-tick the next horizon starts one cadence later, so all but the
// last segment are shared with the previous horizon and can be served from
// cache.
func (h Horizon) Segments() []Window {
	var out []Window
	for s := h.Start; s.Before(h.Start.Add(h.Length)); s = s.Add(h.Cadence) {
		end := s.Add(h.Cadence)
		if limit := h.Start.Add(h.Length); end.After(limit) {
			end = limit
		}
		out = append(out, Window{Start: s, End: end})
	}
	return out
}

// Next returns the horizon for the following rolling-cadence tick.
func (h Horizon) Next() Horizon {
	next := h
	next.Start = h.Start.Add(h.Cadence)
	return next
}

// Validate rejects degenerate horizon geometry.
func (h Horizon) Validate() error {
	if h.Length <= 0 || h.Length%CanonicalResolution != 0 {
		return fmt.Errorf("horizon length %s is not a multiple of the canonical resolution", h.Length)
	}
	if h.Cadence <= 0 || h.Length%h.Cadence != 0 {
		return fmt.Errorf("horizon cadence %s must evenly divide length %s", h.Cadence, h.Length)
	}
	if h.Active <= 0 || h.Active > h.Length {
		return fmt.Errorf("active window %s must lie within the horizon", h.Active)
	}
	if !h.Start.Equal(h.Start.Truncate(CanonicalResolution)) {
		return fmt.Errorf("horizon start %s is off the canonical grid", h.Start.Format(time.RFC3339))
	}
	return nil
}
