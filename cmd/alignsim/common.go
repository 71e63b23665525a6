package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alignsim/alignsim/internal/chat"
	"github.com/alignsim/alignsim/internal/config"
	"github.com/alignsim/alignsim/internal/db"
	"github.com/alignsim/alignsim/internal/llm"
	"github.com/alignsim/alignsim/internal/plan"
	"github.com/alignsim/alignsim/internal/sim"
)

func openDB() (*sql.DB, func(), error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, func() {}, err
	}
	dir := filepath.Join(wd, ".alignsim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, func() {}, err
	}
	conn, err := db.Open(filepath.Join(dir, "alignsim.db"))
	if err != nil {
		return nil, func() {}, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

// buildRegistry assembles the full simulation pipeline: plan store and
// session, LLM transport, agents, orchestrator, and the archiving registry.
func buildRegistry(ctx context.Context, cfg config.Config, conn *sql.DB) (*sim.Registry, error) {
	client, err := llm.NewGenAIClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	store := plan.NewStore(conn)
	session := plan.NewSession(store)
	user := sim.NewUserAgent(client, cfg.Simulation.UserModel)
	judge := sim.NewJudge(client, cfg.Simulation.JudgeModel)
	orch := sim.NewOrchestrator(session, user, judge,
		chat.Factory(client, cfg.Assistant.Model),
		sim.WithDefaultGoal(cfg.Simulation.DefaultGoal),
		sim.WithHistoryLimit(cfg.Assistant.MaxHistory),
	)

	return sim.NewRegistry(orch,
		sim.WithDefaultTurns(cfg.Simulation.DefaultTurns),
		sim.WithTurnCap(cfg.Simulation.MaxTurns),
		sim.WithArchiver(sim.NewSQLArchive(conn)),
	), nil
}

// baseRunConfig seeds a run config from the application config.
func baseRunConfig(cfg config.Config) sim.RunConfig {
	return sim.RunConfig{
		ImprovementGoal:    cfg.Simulation.DefaultGoal,
		MaxTurns:           cfg.Simulation.DefaultTurns,
		AutoAdvance:        true,
		MaxActionsPerTurn:  1,
		AllowShowTasks:     true,
		StopOnMisalignment: cfg.Simulation.StopOnMisalignment,
	}
}
