package eventbus

import "time"

// RunPhase tags one milestone of a pipeline run.
type RunPhase string

const (
	// PhaseAssembling marks the start of a horizon assembly.
	PhaseAssembling RunPhase = "assembling"
	// PhaseAssembled marks a complete, validated input.
	PhaseAssembled RunPhase = "assembled"
	// PhaseSolved marks a returned schedule.
	PhaseSolved RunPhase = "solved"
	// PhaseFailed marks a run aborted by an error.
	PhaseFailed RunPhase = "failed"
)

// RunEvent is published on every pipeline milestone.
type RunEvent struct {
	RunID    string
	Phase    RunPhase
	Start    time.Time
	Degraded bool
	Err      error
	Time     time.Time
}
