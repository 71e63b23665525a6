package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/alignsim/alignsim/internal/plan"
	"github.com/alignsim/alignsim/internal/sim"
)

// executeAction dispatches one normalized action against the plan session.
// The returned string is the per-step result message.
func (a *StructuredAgent) executeAction(ctx context.Context, action sim.ActionSpec) (string, error) {
	switch action.Kind {
	case sim.KindPlanOperation:
		return a.executePlanAction(ctx, action)
	case sim.KindTaskOperation:
		return a.executeTaskAction(ctx, action)
	case sim.KindSystemOperation:
		if action.Name == "help" {
			return "Available operations: " + supportedOperations, nil
		}
	}
	return "", fmt.Errorf("unsupported action %s/%s", action.Kind, action.Name)
}

const supportedOperations = "create_plan, list_plans, delete_plan, create_task, update_task, update_task_instruction, move_task, delete_task, show_tasks, query_status"

func (a *StructuredAgent) executePlanAction(ctx context.Context, action sim.ActionSpec) (string, error) {
	repo := a.session.Repo()
	switch action.Name {
	case "create_plan":
		title := strings.TrimSpace(action.StringParam("title"))
		if title == "" {
			return "", fmt.Errorf("create_plan requires a title")
		}
		id, err := repo.CreatePlan(ctx, title, action.StringParam("description"))
		if err != nil {
			return "", err
		}
		if err := a.session.Bind(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("created plan %d and bound the session to it", id), nil

	case "list_plans":
		plans, err := repo.ListPlans(ctx)
		if err != nil {
			return "", err
		}
		if len(plans) == 0 {
			return "no plans exist yet", nil
		}
		lines := make([]string, 0, len(plans))
		for _, p := range plans {
			lines = append(lines, fmt.Sprintf("[%d] %s (%d tasks)", p.ID, p.Title, p.TaskCount))
		}
		return strings.Join(lines, "\n"), nil

	case "delete_plan":
		planID, ok := action.IntParam("plan_id")
		if !ok {
			return "", fmt.Errorf("delete_plan requires plan_id")
		}
		if err := repo.DeletePlan(ctx, planID); err != nil {
			return "", err
		}
		if bound := a.session.PlanID(); bound != nil && *bound == planID {
			a.session.Detach()
		}
		return fmt.Sprintf("deleted plan %d", planID), nil
	}
	return "", fmt.Errorf("unsupported plan operation %q", action.Name)
}

func (a *StructuredAgent) executeTaskAction(ctx context.Context, action sim.ActionSpec) (string, error) {
	repo := a.session.Repo()
	switch action.Name {
	case "create_task":
		planID := a.session.PlanID()
		if planID == nil {
			return "", plan.ErrNotBound
		}
		name := strings.TrimSpace(action.StringParam("name"))
		if name == "" {
			return "", fmt.Errorf("create_task requires a name")
		}
		var parentID *int64
		if id, ok := action.IntParam("parent_id"); ok {
			parentID = &id
		}
		id, err := repo.CreateTask(ctx, *planID, parentID, name, action.StringParam("instruction"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("created task %d", id), nil

	case "update_task":
		taskID, ok := action.IntParam("task_id")
		if !ok {
			return "", fmt.Errorf("update_task requires task_id")
		}
		update := plan.TaskUpdate{}
		if name := strings.TrimSpace(action.StringParam("name")); name != "" {
			update.Name = &name
		}
		if status := strings.TrimSpace(action.StringParam("status")); status != "" {
			update.Status = &status
		}
		if instr := action.StringParam("instruction"); instr != "" {
			update.Instruction = &instr
		}
		if err := repo.UpdateTask(ctx, taskID, update); err != nil {
			return "", err
		}
		return fmt.Sprintf("updated task %d", taskID), nil

	case "update_task_instruction":
		taskID, ok := action.IntParam("task_id")
		if !ok {
			return "", fmt.Errorf("update_task_instruction requires task_id")
		}
		instr := action.StringParam("instruction")
		if strings.TrimSpace(instr) == "" {
			return "", fmt.Errorf("update_task_instruction requires instruction")
		}
		if err := repo.UpdateTask(ctx, taskID, plan.TaskUpdate{Instruction: &instr}); err != nil {
			return "", err
		}
		return fmt.Sprintf("updated instruction of task %d", taskID), nil

	case "move_task":
		taskID, ok := action.IntParam("task_id")
		if !ok {
			return "", fmt.Errorf("move_task requires task_id")
		}
		var parentID *int64
		if id, ok := action.IntParam("parent_id"); ok {
			parentID = &id
		}
		position := 0
		if p, ok := action.IntParam("position"); ok {
			position = int(p)
		}
		if err := repo.MoveTask(ctx, taskID, parentID, position); err != nil {
			return "", err
		}
		return fmt.Sprintf("moved task %d", taskID), nil

	case "delete_task":
		taskID, ok := action.IntParam("task_id")
		if !ok {
			return "", fmt.Errorf("delete_task requires task_id")
		}
		if err := repo.DeleteTask(ctx, taskID); err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted task %d", taskID), nil

	case "show_tasks":
		if !a.session.Bound() {
			return "", plan.ErrNotBound
		}
		return a.session.Outline(ctx, outlineDepth, outlineNodes), nil

	case "query_status":
		tree, err := a.session.CurrentTree(ctx)
		if err != nil {
			return "", err
		}
		counts := map[string]int{}
		for _, node := range tree.Nodes {
			counts[node.Status]++
		}
		if len(counts) == 0 {
			return "the plan has no tasks yet", nil
		}
		parts := make([]string, 0, len(counts))
		for _, status := range []string{"pending", "running", "done", "failed"} {
			if n := counts[status]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, status))
				delete(counts, status)
			}
		}
		for status, n := range counts {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
		return fmt.Sprintf("%d tasks: %s", tree.NodeCount(), strings.Join(parts, ", ")), nil
	}
	return "", fmt.Errorf("unsupported task operation %q", action.Name)
}
