// Package optimizer hands assembled horizon inputs to a dispatch optimizer
// and decodes the resulting schedule. The solver itself is external; this
// package only speaks its submission protocol.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridkey/horizon/core/logger"
	"github.com/gridkey/horizon/core/model"
)

// ModelVariant selects which revenue streams the solver co-optimizes.
type ModelVariant string

const (
	// VariantI trades day-ahead arbitrage only.
	VariantI ModelVariant = "I"
	// VariantII adds FCR capacity marketing.
	VariantII ModelVariant = "II"
	// VariantIII adds aFRR capacity and energy.
	VariantIII ModelVariant = "III"
	// VariantIIIRenew is VariantIII with on-site renewable generation.
	VariantIIIRenew ModelVariant = "III-renew"
)

// Valid reports whether v names a known model variant.
func (v ModelVariant) Valid() bool {
	switch v {
	case VariantI, VariantII, VariantIII, VariantIIIRenew:
		return true
	}
	return false
}

// SchedulePoint is one canonical-resolution dispatch decision.
type SchedulePoint struct {
	Time         time.Time `json:"timestamp"`
	PowerKW      float64   `json:"power_kw"`
	SoC          float64   `json:"soc"`
	FCRBidMW     float64   `json:"fcr_bid_mw,omitempty"`
	AFRRPosBidMW float64   `json:"afrr_pos_bid_mw,omitempty"`
	AFRRNegBidMW float64   `json:"afrr_neg_bid_mw,omitempty"`
}

// Schedule is the solver's answer for one horizon.
type Schedule struct {
	RunID           string          `json:"run_id"`
	Variant         ModelVariant    `json:"variant"`
	ObjectiveEUR    float64         `json:"objective_eur"`
	Points          []SchedulePoint `json:"schedule"`
	SolverStatus    string          `json:"solver_status"`
	SolveDuration   time.Duration   `json:"-"`
	SolveDurationMS int64           `json:"solve_duration_ms"`
}

// Adapter submits an assembled input to a solver.
type Adapter interface {
	Solve(ctx context.Context, in *model.OptimizationInput, variant ModelVariant) (*Schedule, error)
}

// SolveError carries the solver's rejection.
type SolveError struct {
	Status int
	Body   string
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("optimizer rejected run: status %d: %s", e.Status, e.Body)
}

// HTTPAdapter posts inputs to an optimizer service over HTTP.
type HTTPAdapter struct {
	url    string
	client *http.Client
	log    logger.Logger
}

// NewHTTP builds an adapter against the given solve endpoint.
func NewHTTP(url string, timeout time.Duration, log logger.Logger) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &HTTPAdapter{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Solve submits the input and decodes the schedule. The input is serialized
// with its wire-format series so the solver sees the same shape regardless of
// which sources produced the data.
func (a *HTTPAdapter) Solve(ctx context.Context, in *model.OptimizationInput, variant ModelVariant) (*Schedule, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown model variant %q", variant)
	}
	payload := struct {
		Variant ModelVariant             `json:"variant"`
		Input   *model.OptimizationInput `json:"input"`
	}{Variant: variant, Input: in}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode optimizer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit run %s: %w", in.RunID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SolveError{Status: resp.StatusCode, Body: string(raw)}
	}

	var sched Schedule
	if err := json.NewDecoder(resp.Body).Decode(&sched); err != nil {
		return nil, fmt.Errorf("decode schedule for run %s: %w", in.RunID, err)
	}
	sched.SolveDuration = time.Since(started)
	if sched.RunID == "" {
		sched.RunID = in.RunID
	}
	sched.Variant = variant
	a.log.Infof("run %s solved: status=%s objective=%.2f points=%d in %s",
		sched.RunID, sched.SolverStatus, sched.ObjectiveEUR, len(sched.Points), sched.SolveDuration)
	return &sched, nil
}
