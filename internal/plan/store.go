package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPlanNotFound is returned when a plan id does not exist.
var ErrPlanNotFound = errors.New("plan not found")

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("task not found")

// TaskUpdate carries optional field changes for a task. Nil fields are left
// untouched.
type TaskUpdate struct {
	Name            *string
	Status          *string
	Instruction     *string
	ExecutionResult *string
}

// Repository is the persistence boundary for plans and their tasks.
type Repository interface {
	CreatePlan(ctx context.Context, title, description string) (int64, error)
	ListPlans(ctx context.Context) ([]Summary, error)
	DeletePlan(ctx context.Context, planID int64) error
	Tree(ctx context.Context, planID int64) (*Tree, error)

	CreateTask(ctx context.Context, planID int64, parentID *int64, name, instruction string) (int64, error)
	UpdateTask(ctx context.Context, taskID int64, update TaskUpdate) error
	MoveTask(ctx context.Context, taskID int64, newParentID *int64, position int) error
	DeleteTask(ctx context.Context, taskID int64) error
}

// Store implements Repository over sqlite.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreatePlan inserts a plan and returns its id.
func (s *Store) CreatePlan(ctx context.Context, title, description string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, fmt.Errorf("plan title is required")
	}
	now := nowStamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (title, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title, strings.TrimSpace(description), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("plan id: %w", err)
	}
	return id, nil
}

// ListPlans returns all plans with task counts, newest first.
func (s *Store) ListPlans(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.description, p.updated_at,
		       (SELECT COUNT(*) FROM plan_tasks t WHERE t.plan_id = p.id)
		FROM plans p
		ORDER BY p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.UpdatedAt, &s.TaskCount); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeletePlan removes a plan and all of its tasks.
func (s *Store) DeletePlan(ctx context.Context, planID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, planID)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %d: %w", planID, ErrPlanNotFound)
	}
	return nil
}

// Tree loads a full plan tree from storage.
func (s *Store) Tree(ctx context.Context, planID int64) (*Tree, error) {
	var title, description string
	err := s.db.QueryRowContext(ctx,
		`SELECT title, description FROM plans WHERE id = ?`, planID,
	).Scan(&title, &description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %d: %w", planID, ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}

	tree := NewTree(planID, title, description)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, name, status, instruction, position, execution_result
		FROM plan_tasks WHERE plan_id = ?
		ORDER BY parent_id, position, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		node := &Node{PlanID: planID}
		var parentID sql.NullInt64
		if err := rows.Scan(&node.ID, &parentID, &node.Name, &node.Status,
			&node.Instruction, &node.Position, &node.ExecutionResult); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if parentID.Valid {
			v := parentID.Int64
			node.ParentID = &v
		}
		tree.Nodes[node.ID] = node
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	tree.RebuildAdjacency()
	return tree, nil
}

func (s *Store) nextPosition(ctx context.Context, planID int64, parentID *int64) (int, error) {
	var query string
	var args []any
	if parentID == nil {
		query = `SELECT COALESCE(MAX(position), -1) + 1 FROM plan_tasks WHERE plan_id = ? AND parent_id IS NULL`
		args = []any{planID}
	} else {
		query = `SELECT COALESCE(MAX(position), -1) + 1 FROM plan_tasks WHERE plan_id = ? AND parent_id = ?`
		args = []any{planID, *parentID}
	}
	var pos int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&pos); err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}
	return pos, nil
}

// CreateTask appends a task under parentID (nil for a root task).
func (s *Store) CreateTask(ctx context.Context, planID int64, parentID *int64, name, instruction string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("task name is required")
	}
	if parentID != nil {
		var ok int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM plan_tasks WHERE id = ? AND plan_id = ?`, *parentID, planID,
		).Scan(&ok)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("parent task %d: %w", *parentID, ErrTaskNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("check parent: %w", err)
		}
	}

	pos, err := s.nextPosition(ctx, planID, parentID)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO plan_tasks (plan_id, parent_id, name, instruction, position) VALUES (?, ?, ?, ?, ?)`,
		planID, parentID, name, strings.TrimSpace(instruction), pos,
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	if err := s.touchPlan(ctx, planID); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateTask applies the non-nil fields of update to a task.
func (s *Store) UpdateTask(ctx context.Context, taskID int64, update TaskUpdate) error {
	sets := []string{}
	args := []any{}
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*update.Name))
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, strings.TrimSpace(*update.Status))
	}
	if update.Instruction != nil {
		sets = append(sets, "instruction = ?")
		args = append(args, *update.Instruction)
	}
	if update.ExecutionResult != nil {
		sets = append(sets, "execution_result = ?")
		args = append(args, *update.ExecutionResult)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, taskID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	return s.touchPlanOfTask(ctx, taskID)
}

// MoveTask reparents a task and assigns its position among new siblings.
func (s *Store) MoveTask(ctx context.Context, taskID int64, newParentID *int64, position int) error {
	var planID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT plan_id FROM plan_tasks WHERE id = ?`, taskID,
	).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if newParentID != nil {
		if *newParentID == taskID {
			return fmt.Errorf("task %d cannot be its own parent", taskID)
		}
		var ok int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM plan_tasks WHERE id = ? AND plan_id = ?`, *newParentID, planID,
		).Scan(&ok)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("parent task %d: %w", *newParentID, ErrTaskNotFound)
		}
		if err != nil {
			return fmt.Errorf("check parent: %w", err)
		}
	}
	if position < 0 {
		position = 0
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE plan_tasks SET parent_id = ?, position = ? WHERE id = ?`,
		newParentID, position, taskID,
	); err != nil {
		return fmt.Errorf("move task: %w", err)
	}
	return s.touchPlan(ctx, planID)
}

// DeleteTask removes a task and, through the FK cascade, its subtree.
func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	var planID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT plan_id FROM plan_tasks WHERE id = ?`, taskID,
	).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plan_tasks WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return s.touchPlan(ctx, planID)
}

func (s *Store) touchPlan(ctx context.Context, planID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE plans SET updated_at = ? WHERE id = ?`, nowStamp(), planID,
	); err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return nil
}

func (s *Store) touchPlanOfTask(ctx context.Context, taskID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET updated_at = ?
		WHERE id = (SELECT plan_id FROM plan_tasks WHERE id = ?)`,
		nowStamp(), taskID,
	); err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return nil
}
