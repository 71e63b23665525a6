package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleRunState() *RunState {
	success := true
	failed := false
	confidence := 0.8
	planID := int64(12)
	return &RunState{
		RunID:  "run-42",
		Status: StatusFinished,
		Config: RunConfig{PlanID: &planID, ImprovementGoal: "tighten the plan", MaxTurns: 2},
		Turns: []Turn{
			{
				Index: 1,
				Goal:  "tighten the plan",
				User: UserTurn{
					Message:       "Please add a labeling task.",
					DesiredAction: &ActionSpec{Kind: KindTaskOperation, Name: ActionCreateTask, Parameters: map[string]any{"name": "Label"}},
				},
				Assistant: AssistantTurn{
					Reply: "Added the task.",
					Actions: []ActionSpec{
						{Kind: KindTaskOperation, Name: ActionCreateTask, Success: &success, ResultMessage: "created task 5"},
						{Kind: KindTaskOperation, Name: "move_task", Success: &failed, ResultMessage: "parent missing"},
					},
				},
				Judge: &Verdict{Alignment: Misaligned, Explanation: "Moved instead of creating.", Confidence: &confidence},
			},
		},
		AlignmentIssues: []AlignmentIssue{{TurnIndex: 1, Reason: "Moved instead of creating."}},
	}
}

func TestFormatRunSummary(t *testing.T) {
	t.Parallel()

	out := FormatRunSummary(sampleRunState())

	assert.Contains(t, out, "Simulation run run-42")
	assert.Contains(t, out, "Status: finished")
	assert.Contains(t, out, "Plan: 12")
	assert.Contains(t, out, "Turns: 1/2")
	assert.Contains(t, out, "--- Turn 1 ---")
	assert.Contains(t, out, "Please add a labeling task.")
	assert.Contains(t, out, "task_operation:create_task")
	assert.Contains(t, out, "[ok]")
	assert.Contains(t, out, "[FAILED]")
	assert.Contains(t, out, "parent missing")
	assert.Contains(t, out, "Judge: misaligned -- Moved instead of creating. (confidence 0.80)")
	assert.Contains(t, out, "Alignment issues:")
	assert.Contains(t, out, "turn 1: Moved instead of creating.")
}

func TestFormatRunSummary_ErroredRun(t *testing.T) {
	t.Parallel()

	state := sampleRunState()
	state.Status = StatusError
	state.Error = "judge call: model unavailable"

	out := FormatRunSummary(state)
	assert.Contains(t, out, "Status: error")
	assert.Contains(t, out, "Error: judge call: model unavailable")
	assert.Contains(t, out, "--- Turn 1 ---", "partial progress stays in the transcript")
}
