package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alignsim/alignsim/internal/logging"
)

// Archiver persists terminal runs. Archiving is best effort: failures are
// logged and never affect the run state.
type Archiver interface {
	ArchiveRun(ctx context.Context, state *RunState) error
}

// TurnRunner executes one simulation turn against the given state.
type TurnRunner interface {
	RunTurn(ctx context.Context, state *RunState) (Turn, error)
}

const (
	registryDefaultTurns = 5
	registryTurnCap      = 10
)

// Registry is the keyed store of simulation runs. It owns the run lifecycle:
// status transitions, the misalignment ledger, turn budget enforcement, and
// the at-most-one-in-flight-advance guarantee per run.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*RunState
	busy map[string]bool

	runner       TurnRunner
	defaultTurns int
	turnCap      int
	archiver     Archiver
	log          zerolog.Logger
}

// RegistryOption adjusts registry construction.
type RegistryOption func(*Registry)

// WithDefaultTurns sets the turn count used when a config omits MaxTurns.
func WithDefaultTurns(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.defaultTurns = n
		}
	}
}

// WithTurnCap sets the system-wide maximum turns per run.
func WithTurnCap(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.turnCap = n
		}
	}
}

// WithArchiver attaches a best-effort archive for terminal runs.
func WithArchiver(a Archiver) RegistryOption {
	return func(r *Registry) { r.archiver = a }
}

// NewRegistry builds a registry over the given turn runner.
func NewRegistry(runner TurnRunner, opts ...RegistryOption) *Registry {
	r := &Registry{
		runs:         map[string]*RunState{},
		busy:         map[string]bool{},
		runner:       runner,
		defaultTurns: registryDefaultTurns,
		turnCap:      registryTurnCap,
		log:          logging.Component("sim.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) clampTurns(requested int) int {
	if requested <= 0 {
		requested = r.defaultTurns
	}
	if requested < 1 {
		requested = 1
	}
	if requested > r.turnCap {
		requested = r.turnCap
	}
	return requested
}

// CreateRun allocates a fresh pending run from the config.
func (r *Registry) CreateRun(cfg RunConfig) (*RunState, error) {
	cfg.MaxTurns = r.clampTurns(cfg.MaxTurns)
	state := &RunState{
		RunID:     uuid.NewString(),
		Config:    cfg,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.runs[state.RunID] = state
	r.mu.Unlock()

	r.log.Info().
		Str("run_id", state.RunID).
		Int("max_turns", cfg.MaxTurns).
		Bool("stop_on_misalignment", cfg.StopOnMisalignment).
		Msg("simulation run created")
	return state.Snapshot(), nil
}

// GetRun returns a snapshot of the run, or nil when unknown.
func (r *Registry) GetRun(runID string) *RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.runs[runID]
	if !ok {
		return nil
	}
	return state.Snapshot()
}

// ListRuns returns snapshots of all runs, newest first.
func (r *Registry) ListRuns() []*RunState {
	r.mu.Lock()
	out := make([]*RunState, 0, len(r.runs))
	for _, state := range r.runs {
		out = append(out, state.Snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// AdvanceRun executes exactly one turn. A terminal run is returned unchanged.
// Any turn error is captured here, once, as Status error with the message
// recorded; it is never re-raised to the caller. Concurrent advances on the
// same run fail fast with ErrRunBusy.
func (r *Registry) AdvanceRun(ctx context.Context, runID string) (*RunState, error) {
	r.mu.Lock()
	state, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if state.Status.Terminal() {
		snap := state.Snapshot()
		r.mu.Unlock()
		return snap, nil
	}
	if r.busy[runID] {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunBusy)
	}
	r.busy[runID] = true
	state.Status = StatusRunning
	working := state.Snapshot()
	r.mu.Unlock()

	turn, runErr := r.runner.RunTurn(ctx, working)

	r.mu.Lock()
	delete(r.busy, runID)
	if state.Status.Terminal() {
		// Cancelled while the turn was in flight; discard the late result.
		snap := state.Snapshot()
		r.mu.Unlock()
		r.log.Info().Str("run_id", runID).Msg("discarding turn completed after terminal transition")
		return snap, nil
	}

	var toArchive *RunState
	if runErr != nil {
		state.Status = StatusError
		state.Error = runErr.Error()
		state.FinishedAt = timePtr(time.Now().UTC())
		toArchive = state.Snapshot()
		r.mu.Unlock()
		r.log.Error().Err(runErr).Str("run_id", runID).Msg("simulation turn failed")
		r.archive(ctx, toArchive)
		return toArchive, nil
	}

	state.Config.ImprovementGoal = working.Config.ImprovementGoal
	if err := state.AppendTurn(turn); err != nil {
		state.Status = StatusError
		state.Error = err.Error()
		state.FinishedAt = timePtr(time.Now().UTC())
		toArchive = state.Snapshot()
		r.mu.Unlock()
		r.log.Error().Err(err).Str("run_id", runID).Msg("turn append rejected")
		r.archive(ctx, toArchive)
		return toArchive, nil
	}

	if turn.Judge != nil && turn.Judge.Alignment == Misaligned {
		issue := AlignmentIssue{TurnIndex: turn.Index, Reason: turn.Judge.Explanation}
		if state.Config.StopOnMisalignment {
			issue.Delivered = true
			state.AlignmentIssues = append(state.AlignmentIssues, issue)
			state.Status = StatusFinished
			state.FinishedAt = timePtr(time.Now().UTC())
		} else {
			state.AlignmentIssues = append(state.AlignmentIssues, issue)
		}
	}
	if !state.Status.Terminal() && len(state.Turns) >= state.Config.MaxTurns {
		state.Status = StatusFinished
		state.FinishedAt = timePtr(time.Now().UTC())
	}
	snap := state.Snapshot()
	if state.Status.Terminal() {
		toArchive = snap
	}
	r.mu.Unlock()

	if toArchive != nil {
		r.archive(ctx, toArchive)
	}
	return snap, nil
}

// AutoRun advances the run until it reaches a terminal status or the turn
// budget is exhausted.
func (r *Registry) AutoRun(ctx context.Context, runID string) (*RunState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state, err := r.AdvanceRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if state.Status.Terminal() {
			return state, nil
		}
	}
}

// CancelRun marks a run cancelled. A terminal run is returned unchanged; an
// unknown run id yields nil. In-flight turns are not aborted; their results
// are discarded when they complete.
func (r *Registry) CancelRun(ctx context.Context, runID string) (*RunState, error) {
	r.mu.Lock()
	state, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	if state.Status.Terminal() {
		snap := state.Snapshot()
		r.mu.Unlock()
		return snap, nil
	}
	state.Status = StatusCancelled
	state.FinishedAt = timePtr(time.Now().UTC())
	snap := state.Snapshot()
	r.mu.Unlock()

	r.log.Info().Str("run_id", runID).Msg("simulation run cancelled")
	r.archive(ctx, snap)
	return snap, nil
}

func (r *Registry) archive(ctx context.Context, state *RunState) {
	if r.archiver == nil {
		return
	}
	if err := r.archiver.ArchiveRun(ctx, state); err != nil {
		r.log.Warn().Err(err).Str("run_id", state.RunID).Msg("run archive failed")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
