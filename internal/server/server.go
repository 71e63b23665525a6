// Package server exposes the run registry over an HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/alignsim/alignsim/internal/logging"
	"github.com/alignsim/alignsim/internal/sim"
)

// Server provides the simulation API handlers.
type Server struct {
	registry *sim.Registry
	defaults sim.RunConfig
	log      zerolog.Logger
}

// NewServer creates an API server over the registry. The defaults config
// seeds new runs when the request omits fields.
func NewServer(registry *sim.Registry, defaults sim.RunConfig) *Server {
	return &Server{
		registry: registry,
		defaults: defaults,
		log:      logging.Component("server"),
	}
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /simulation/run", s.handleStartRun)
	mux.HandleFunc("GET /simulation/runs", s.handleListRuns)
	mux.HandleFunc("GET /simulation/run/{id}", s.handleGetRun)
	mux.HandleFunc("POST /simulation/run/{id}/advance", s.handleAdvanceRun)
	mux.HandleFunc("POST /simulation/run/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("GET /simulation/run/{id}/export", s.handleExportRun)
	return mux
}

type runRequest struct {
	SessionID          string `json:"session_id,omitempty"`
	PlanID             *int64 `json:"plan_id,omitempty"`
	ImprovementGoal    string `json:"improvement_goal,omitempty"`
	MaxTurns           int    `json:"max_turns,omitempty"`
	AutoAdvance        *bool  `json:"auto_advance,omitempty"`
	StopOnMisalignment *bool  `json:"stop_on_misalignment,omitempty"`
}

type advanceRequest struct {
	AutoContinue bool `json:"auto_continue,omitempty"`
}

type runEnvelope struct {
	Run *runPayload `json:"run"`
}

type runPayload struct {
	*sim.RunState
	RemainingTurns int `json:"remaining_turns"`
}

func envelope(state *sim.RunState) runEnvelope {
	return runEnvelope{Run: &runPayload{RunState: state, RemainingTurns: state.RemainingTurns()}}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := s.defaults
	cfg.SessionID = req.SessionID
	if req.PlanID != nil {
		cfg.PlanID = req.PlanID
	}
	if req.ImprovementGoal != "" {
		cfg.ImprovementGoal = req.ImprovementGoal
	}
	if req.MaxTurns > 0 {
		cfg.MaxTurns = req.MaxTurns
	}
	if req.AutoAdvance != nil {
		cfg.AutoAdvance = *req.AutoAdvance
	}
	if req.StopOnMisalignment != nil {
		cfg.StopOnMisalignment = *req.StopOnMisalignment
	}

	state, err := s.registry.CreateRun(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if cfg.AutoAdvance {
		go s.autoRunBackground(state.RunID)
	}
	writeJSON(w, http.StatusOK, envelope(state))
}

func (s *Server) autoRunBackground(runID string) {
	if _, err := s.registry.AutoRun(context.Background(), runID); err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("background auto-run failed")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.registry.ListRuns()
	payload := make([]*runPayload, 0, len(runs))
	for _, state := range runs {
		payload = append(payload, &runPayload{RunState: state, RemainingTurns: state.RemainingTurns()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": payload})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	state := s.registry.GetRun(r.PathValue("id"))
	if state == nil {
		writeError(w, http.StatusNotFound, "simulation run not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope(state))
}

func (s *Server) handleAdvanceRun(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	state, err := s.registry.AdvanceRun(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, sim.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "simulation run not found")
		return
	case errors.Is(err, sim.ErrRunBusy):
		writeError(w, http.StatusConflict, "simulation run is already advancing")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.AutoContinue && !state.Status.Terminal() {
		go s.autoRunBackground(state.RunID)
	}
	writeJSON(w, http.StatusOK, envelope(state))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.registry.CancelRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "simulation run not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope(state))
}

func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	state := s.registry.GetRun(r.PathValue("id"))
	if state == nil {
		writeError(w, http.StatusNotFound, "simulation run not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(sim.FormatRunSummary(state)))
}
