package sim

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Action kinds understood by the simulation agents.
const (
	KindPlanOperation   = "plan_operation"
	KindTaskOperation   = "task_operation"
	KindToolOperation   = "tool_operation"
	KindSystemOperation = "system_operation"
	KindContextRequest  = "context_request"
)

// Well-known action names referenced by the dedup rule.
const (
	ActionCreateTask            = "create_task"
	ActionUpdateTaskInstruction = "update_task_instruction"
)

// ActionSpec describes one requested operation, either desired by the
// simulated user or executed by the assistant. Values are never mutated;
// rewrites construct a new value.
type ActionSpec struct {
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Blocking      bool           `json:"blocking"`
	Order         *int           `json:"order,omitempty"`
	Success       *bool          `json:"success,omitempty"`
	ResultMessage string         `json:"result_message,omitempty"`
}

// IntParam reads an integer-valued parameter, tolerating JSON float decoding.
func (a ActionSpec) IntParam(key string) (int64, bool) {
	v, ok := a.Parameters[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// StringParam reads a string-valued parameter.
func (a ActionSpec) StringParam(key string) string {
	if v, ok := a.Parameters[key].(string); ok {
		return v
	}
	return ""
}

var knownKinds = map[string]bool{
	KindPlanOperation:   true,
	KindTaskOperation:   true,
	KindToolOperation:   true,
	KindSystemOperation: true,
	KindContextRequest:  true,
}

var integerParams = map[string]bool{
	"task_id":   true,
	"parent_id": true,
	"plan_id":   true,
	"position":  true,
}

// NormalizeAction validates an action's kind/name/parameter shape and returns
// a cleaned copy. Integer-like parameters decoded as JSON floats are converted
// to int64 so downstream comparisons work on stable types.
func NormalizeAction(kind, name string, params map[string]any) (ActionSpec, error) {
	kind = strings.TrimSpace(kind)
	name = strings.TrimSpace(name)
	if kind == "" {
		return ActionSpec{}, fmt.Errorf("action kind is required")
	}
	if !knownKinds[kind] {
		return ActionSpec{}, fmt.Errorf("unknown action kind %q", kind)
	}
	if name == "" {
		return ActionSpec{}, fmt.Errorf("action name is required")
	}

	cleaned := make(map[string]any, len(params))
	for key, value := range params {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if integerParams[key] && value != nil {
			switch n := value.(type) {
			case float64:
				value = int64(n)
			case int:
				value = int64(n)
			case json.Number:
				i, err := n.Int64()
				if err != nil {
					return ActionSpec{}, fmt.Errorf("parameter %q is not an integer", key)
				}
				value = i
			case int64:
			default:
				return ActionSpec{}, fmt.Errorf("parameter %q is not an integer", key)
			}
		}
		cleaned[key] = value
	}

	return ActionSpec{Kind: kind, Name: name, Parameters: cleaned, Blocking: true}, nil
}

// FormatAction renders an action for prompts and transcripts.
func FormatAction(action *ActionSpec) string {
	if action == nil {
		return "(no action)"
	}
	if len(action.Parameters) == 0 {
		return fmt.Sprintf("%s:%s params={}", action.Kind, action.Name)
	}
	keys := make([]string, 0, len(action.Parameters))
	for k := range action.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, action.Parameters[k]))
	}
	return fmt.Sprintf("%s:%s params=%s", action.Kind, action.Name, strings.Join(parts, ", "))
}

// BuildActionCatalog returns the catalog text shared by the agent prompts.
// The available operations depend on whether a plan is bound and on the run
// config toggles.
func BuildActionCatalog(planBound bool, cfg RunConfig) string {
	lines := []string{"- system_operation: help"}
	if cfg.AllowWebSearch {
		lines = append(lines, "- tool_operation: web_search (live web information; requires `query`, optional provider/max_results)")
	}
	if cfg.AllowGraphRAG {
		lines = append(lines, "- tool_operation: graph_rag (query the knowledge graph; requires `query`, optional top_k/hops)")
	}
	if !planBound {
		lines = append(lines,
			"- plan_operation: create_plan  # only when the user explicitly asks to create a plan",
			"- plan_operation: list_plans  # list candidates; do not mutate tasks while unbound",
		)
		return strings.Join(lines, "\n")
	}

	planOps := "- plan_operation: create_plan, list_plans, delete_plan"
	if cfg.EnableExecuteActions {
		planOps = "- plan_operation: create_plan, execute_plan, list_plans, delete_plan"
	}
	taskOps := []string{"create_task", "update_task", "update_task_instruction", "move_task", "delete_task", "query_status"}
	if cfg.AllowShowTasks {
		taskOps = append(taskOps, "show_tasks")
	}
	if cfg.AllowRerunTask {
		taskOps = append(taskOps, "rerun_task")
	}
	lines = append(lines,
		planOps,
		"- task_operation: "+strings.Join(taskOps, ", "),
		"- context_request: request_subgraph (request additional task context; must not be combined with other actions)",
	)
	return strings.Join(lines, "\n")
}
