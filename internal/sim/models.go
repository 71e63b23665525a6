// Package sim implements the simulation turn loop: the simulated user agent,
// the judge, the orchestrator that sequences one turn, and the run registry
// that owns run lifecycle and the misalignment ledger.
package sim

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors surfaced by the simulation core.
var (
	// ErrValidation marks LLM output that is structurally valid JSON but
	// missing a required field that cannot be defaulted.
	ErrValidation = errors.New("validation failed")
	// ErrMalformedResponse marks LLM output that is not parseable as JSON
	// where JSON is required.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrRunNotFound marks an unknown run id.
	ErrRunNotFound = errors.New("simulation run not found")
	// ErrRunBusy marks a second concurrent advance on the same run.
	ErrRunBusy = errors.New("simulation run is already advancing")
)

// Alignment is the judge's verdict label for one turn.
type Alignment string

const (
	Aligned    Alignment = "aligned"
	Misaligned Alignment = "misaligned"
	Unclear    Alignment = "unclear"
)

// CoerceAlignment folds an arbitrary label into a recognized Alignment.
// Unrecognized values become Unclear rather than an error.
func CoerceAlignment(raw string) Alignment {
	switch Alignment(strings.ToLower(strings.TrimSpace(raw))) {
	case Aligned:
		return Aligned
	case Misaligned:
		return Misaligned
	case Unclear:
		return Unclear
	}
	return Unclear
}

// UserTurn is the simulated user's output for one turn.
type UserTurn struct {
	Message       string         `json:"message"`
	DesiredAction *ActionSpec    `json:"desired_action,omitempty"`
	RawResponse   map[string]any `json:"raw_response,omitempty"`
}

// AssistantTurn is the assistant's reply and executed actions for one turn.
type AssistantTurn struct {
	Reply       string         `json:"reply"`
	Actions     []ActionSpec   `json:"actions"`
	RawResponse map[string]any `json:"raw_response,omitempty"`
}

// DefaultExplanation is used when the judge returns a blank explanation.
const DefaultExplanation = "No explanation provided."

// Verdict is the judge's evaluation of one turn.
type Verdict struct {
	Alignment   Alignment      `json:"alignment"`
	Explanation string         `json:"explanation"`
	Confidence  *float64       `json:"confidence,omitempty"`
	RawResponse map[string]any `json:"raw_response,omitempty"`
}

// ClampConfidence converts an arbitrary JSON value into a confidence in
// [0, 1]. Non-numeric values yield nil, not an error.
func ClampConfidence(raw any) *float64 {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	default:
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

// Turn is one full simulated-user/assistant/judge cycle. Append-only once
// owned by a run state.
type Turn struct {
	Index     int           `json:"index"`
	User      UserTurn      `json:"simulated_user"`
	Assistant AssistantTurn `json:"chat_agent"`
	Judge     *Verdict      `json:"judge,omitempty"`
	Goal      string        `json:"goal"`
}

// RunConfig is the immutable input of a run. ImprovementGoal is the one
// exception: the orchestrator writes the resolved default back on first turn.
type RunConfig struct {
	SessionID            string `json:"session_id,omitempty"`
	PlanID               *int64 `json:"plan_id,omitempty"`
	ImprovementGoal      string `json:"improvement_goal"`
	MaxTurns             int    `json:"max_turns"`
	AutoAdvance          bool   `json:"auto_advance"`
	MaxActionsPerTurn    int    `json:"max_actions_per_turn"`
	EnableExecuteActions bool   `json:"enable_execute_actions"`
	AllowWebSearch       bool   `json:"allow_web_search"`
	AllowRerunTask       bool   `json:"allow_rerun_task"`
	AllowGraphRAG        bool   `json:"allow_graph_rag"`
	AllowShowTasks       bool   `json:"allow_show_tasks"`
	StopOnMisalignment   bool   `json:"stop_on_misalignment"`
}

// AlignmentIssue records one misaligned turn. Delivered marks whether the
// issue has already been surfaced to a caller, supporting idempotent
// notification on early stop.
type AlignmentIssue struct {
	TurnIndex int    `json:"turn_index"`
	Reason    string `json:"reason"`
	Delivered bool   `json:"delivered"`
}

// Status is the run lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled || s == StatusError
}

// RunState is the full state of one simulation run.
type RunState struct {
	RunID           string           `json:"run_id"`
	Config          RunConfig        `json:"config"`
	Status          Status           `json:"status"`
	Turns           []Turn           `json:"turns"`
	AlignmentIssues []AlignmentIssue `json:"alignment_issues"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// RemainingTurns is the derived turn budget left on the run.
func (s *RunState) RemainingTurns() int {
	remaining := s.Config.MaxTurns - len(s.Turns)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AppendTurn appends a turn, enforcing contiguous 1-based indices and the
// max-turns cap.
func (s *RunState) AppendTurn(turn Turn) error {
	if turn.Index != len(s.Turns)+1 {
		return fmt.Errorf("turn index %d out of order (have %d turns)", turn.Index, len(s.Turns))
	}
	if len(s.Turns) >= s.Config.MaxTurns {
		return fmt.Errorf("turn budget of %d exhausted", s.Config.MaxTurns)
	}
	s.Turns = append(s.Turns, turn)
	return nil
}

// LastTurn returns the most recent turn, or nil for a fresh run.
func (s *RunState) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// Snapshot returns a copy whose slices are detached from the original, safe
// to hand to callers outside the registry lock.
func (s *RunState) Snapshot() *RunState {
	cp := *s
	cp.Turns = append([]Turn(nil), s.Turns...)
	cp.AlignmentIssues = append([]AlignmentIssue(nil), s.AlignmentIssues...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
