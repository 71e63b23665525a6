package sim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLArchive persists terminal runs to the sim_runs / sim_turns tables so
// transcripts survive the process and can be listed, shown, and exported
// later.
type SQLArchive struct {
	db *sql.DB
}

// NewSQLArchive wraps an open database handle.
func NewSQLArchive(db *sql.DB) *SQLArchive {
	return &SQLArchive{db: db}
}

// ArchiveRun upserts the run row and replaces its turn rows.
func (a *SQLArchive) ArchiveRun(ctx context.Context, state *RunState) error {
	configJSON, err := json.Marshal(state.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	issuesJSON, err := json.Marshal(state.AlignmentIssues)
	if err != nil {
		return fmt.Errorf("marshal alignment issues: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var finishedAt any
	if state.FinishedAt != nil {
		finishedAt = state.FinishedAt.Format(time.RFC3339)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sim_runs (run_id, plan_id, goal, status, error, config_json, issues_json, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			goal = excluded.goal,
			config_json = excluded.config_json,
			issues_json = excluded.issues_json,
			finished_at = excluded.finished_at`,
		state.RunID, state.Config.PlanID, state.Config.ImprovementGoal, string(state.Status),
		state.Error, string(configJSON), string(issuesJSON),
		state.CreatedAt.Format(time.RFC3339), finishedAt,
	); err != nil {
		return fmt.Errorf("archive run row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sim_turns WHERE run_id = ?`, state.RunID); err != nil {
		return fmt.Errorf("clear archived turns: %w", err)
	}
	for i := range state.Turns {
		turn := &state.Turns[i]
		var desiredJSON, verdictJSON any
		if turn.User.DesiredAction != nil {
			raw, err := json.Marshal(turn.User.DesiredAction)
			if err != nil {
				return fmt.Errorf("marshal desired action: %w", err)
			}
			desiredJSON = string(raw)
		}
		if turn.Judge != nil {
			raw, err := json.Marshal(turn.Judge)
			if err != nil {
				return fmt.Errorf("marshal verdict: %w", err)
			}
			verdictJSON = string(raw)
		}
		actionsJSON, err := json.Marshal(turn.Assistant.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sim_turns (run_id, turn_index, goal, user_message, desired_action_json, reply, actions_json, verdict_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			state.RunID, turn.Index, turn.Goal, turn.User.Message,
			desiredJSON, turn.Assistant.Reply, string(actionsJSON), verdictJSON,
		); err != nil {
			return fmt.Errorf("archive turn %d: %w", turn.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// ListRuns returns archived run states without their turns, newest first.
func (a *SQLArchive) ListRuns(ctx context.Context) ([]*RunState, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT run_id, status, error, goal, config_json, issues_json, created_at, finished_at
		FROM sim_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("list archived runs: %w", err)
	}
	defer rows.Close()

	var out []*RunState
	for rows.Next() {
		state, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// LoadRun reconstructs a full archived run, turns included. Returns
// ErrRunNotFound for unknown ids.
func (a *SQLArchive) LoadRun(ctx context.Context, runID string) (*RunState, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT run_id, status, error, goal, config_json, issues_json, created_at, finished_at
		FROM sim_runs WHERE run_id = ?`, runID)
	state, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT turn_index, goal, user_message, desired_action_json, reply, actions_json, verdict_json
		FROM sim_turns WHERE run_id = ? ORDER BY turn_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("load archived turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn Turn
		var desiredJSON, verdictJSON sql.NullString
		var actionsJSON string
		if err := rows.Scan(&turn.Index, &turn.Goal, &turn.User.Message,
			&desiredJSON, &turn.Assistant.Reply, &actionsJSON, &verdictJSON); err != nil {
			return nil, fmt.Errorf("scan archived turn: %w", err)
		}
		if desiredJSON.Valid && desiredJSON.String != "" {
			var action ActionSpec
			if err := json.Unmarshal([]byte(desiredJSON.String), &action); err != nil {
				return nil, fmt.Errorf("decode desired action: %w", err)
			}
			turn.User.DesiredAction = &action
		}
		if err := json.Unmarshal([]byte(actionsJSON), &turn.Assistant.Actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
		if verdictJSON.Valid && verdictJSON.String != "" {
			var verdict Verdict
			if err := json.Unmarshal([]byte(verdictJSON.String), &verdict); err != nil {
				return nil, fmt.Errorf("decode verdict: %w", err)
			}
			turn.Judge = &verdict
		}
		state.Turns = append(state.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return state, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(row rowScanner) (*RunState, error) {
	state := &RunState{}
	var status, configJSON, issuesJSON, createdAt string
	var finishedAt sql.NullString
	if err := row.Scan(&state.RunID, &status, &state.Error, &state.Config.ImprovementGoal,
		&configJSON, &issuesJSON, &createdAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan archived run: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &state.Config); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	if err := json.Unmarshal([]byte(issuesJSON), &state.AlignmentIssues); err != nil {
		return nil, fmt.Errorf("decode alignment issues: %w", err)
	}
	state.Status = Status(status)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		state.CreatedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			state.FinishedAt = &t
		}
	}
	return state, nil
}
