package chat

import (
	"context"
	"fmt"
	"strings"
)

func (a *StructuredAgent) buildPrompt(ctx context.Context, message string) string {
	outline := "(no plan bound)"
	if a.session.Bound() {
		outline = a.session.Outline(ctx, outlineDepth, outlineNodes)
	}

	history := a.history
	if len(history) > a.maxHistory {
		history = history[len(history)-a.maxHistory:]
	}
	historyText := "(no prior messages)"
	if len(history) > 0 {
		lines := make([]string, 0, len(history))
		for _, msg := range history {
			lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
		}
		historyText = strings.Join(lines, "\n")
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a planning assistant that manages hierarchical task plans.

Plan outline:
%s

Conversation so far:
%s

User message:
%s

Decide which operations to perform. Supported operations:
- plan_operation: create_plan (title, description), list_plans, delete_plan (plan_id)
- task_operation: create_task (name, instruction, parent_id), update_task (task_id, name/status/instruction),
  update_task_instruction (task_id, instruction), move_task (task_id, parent_id, position),
  delete_task (task_id), show_tasks, query_status
- system_operation: help

Respond with a single JSON object:
{
  "llm_reply": {"message": "<natural language reply to the user>"},
  "actions": [
    {"kind": "<kind>", "name": "<name>", "parameters": { ... }, "order": 1}
  ]
}

Use an empty actions array when no operation is needed. Respond with JSON only.
`, outline, historyText, message))
}
