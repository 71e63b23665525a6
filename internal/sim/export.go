package sim

import (
	"fmt"
	"strings"
)

// FormatRunSummary renders a plain-text, turn-by-turn transcript of a run for
// human review. An errored run shows every turn completed before the failure
// plus the recorded error.
func FormatRunSummary(state *RunState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulation run %s\n", state.RunID)
	fmt.Fprintf(&b, "Status: %s\n", state.Status)
	if state.Config.PlanID != nil {
		fmt.Fprintf(&b, "Plan: %d\n", *state.Config.PlanID)
	}
	fmt.Fprintf(&b, "Goal: %s\n", state.Config.ImprovementGoal)
	fmt.Fprintf(&b, "Turns: %d/%d\n", len(state.Turns), state.Config.MaxTurns)
	if state.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", state.Error)
	}

	for i := range state.Turns {
		turn := &state.Turns[i]
		fmt.Fprintf(&b, "\n--- Turn %d ---\n", turn.Index)
		fmt.Fprintf(&b, "Simulated user: %s\n", turn.User.Message)
		fmt.Fprintf(&b, "Desired action: %s\n", FormatAction(turn.User.DesiredAction))
		fmt.Fprintf(&b, "Assistant reply: %s\n", turn.Assistant.Reply)
		if len(turn.Assistant.Actions) == 0 {
			b.WriteString("Assistant actions: (none)\n")
		} else {
			b.WriteString("Assistant actions:\n")
			for j := range turn.Assistant.Actions {
				action := &turn.Assistant.Actions[j]
				mark := "?"
				if action.Success != nil {
					if *action.Success {
						mark = "ok"
					} else {
						mark = "FAILED"
					}
				}
				fmt.Fprintf(&b, "  [%s] %s", mark, FormatAction(action))
				if action.ResultMessage != "" {
					fmt.Fprintf(&b, " -- %s", action.ResultMessage)
				}
				b.WriteByte('\n')
			}
		}
		if turn.Judge != nil {
			fmt.Fprintf(&b, "Judge: %s -- %s", turn.Judge.Alignment, turn.Judge.Explanation)
			if turn.Judge.Confidence != nil {
				fmt.Fprintf(&b, " (confidence %.2f)", *turn.Judge.Confidence)
			}
			b.WriteByte('\n')
		} else {
			b.WriteString("Judge: (pending)\n")
		}
	}

	if len(state.AlignmentIssues) > 0 {
		b.WriteString("\nAlignment issues:\n")
		for _, issue := range state.AlignmentIssues {
			fmt.Fprintf(&b, "  turn %d: %s\n", issue.TurnIndex, issue.Reason)
		}
	}
	return b.String()
}
