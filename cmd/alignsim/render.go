package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/alignsim/alignsim/internal/sim"
)

var statusStyles = map[sim.Status]lipgloss.Style{
	sim.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	sim.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	sim.StatusFinished:  lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
	sim.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	sim.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

func styledStatus(status sim.Status) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(string(status))
	}
	return string(status)
}

// transcriptMarkdown converts a run into markdown for terminal rendering.
func transcriptMarkdown(state *sim.RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Simulation run `%s`\n\n", state.RunID)
	fmt.Fprintf(&b, "**Status:** %s  \n", state.Status)
	fmt.Fprintf(&b, "**Goal:** %s  \n", state.Config.ImprovementGoal)
	fmt.Fprintf(&b, "**Turns:** %d/%d\n", len(state.Turns), state.Config.MaxTurns)
	if state.Error != "" {
		fmt.Fprintf(&b, "\n**Error:** %s\n", state.Error)
	}

	for i := range state.Turns {
		turn := &state.Turns[i]
		fmt.Fprintf(&b, "\n## Turn %d\n\n", turn.Index)
		fmt.Fprintf(&b, "**User:** %s\n\n", turn.User.Message)
		fmt.Fprintf(&b, "**Desired action:** `%s`\n\n", sim.FormatAction(turn.User.DesiredAction))
		fmt.Fprintf(&b, "**Assistant:** %s\n", turn.Assistant.Reply)
		for j := range turn.Assistant.Actions {
			action := &turn.Assistant.Actions[j]
			mark := "?"
			if action.Success != nil {
				if *action.Success {
					mark = "x"
				} else {
					mark = " "
				}
			}
			fmt.Fprintf(&b, "- [%s] `%s`", mark, sim.FormatAction(action))
			if action.ResultMessage != "" {
				fmt.Fprintf(&b, " -- %s", action.ResultMessage)
			}
			b.WriteByte('\n')
		}
		if turn.Judge != nil {
			fmt.Fprintf(&b, "\n**Judge:** %s -- %s\n", turn.Judge.Alignment, turn.Judge.Explanation)
		}
	}

	if len(state.AlignmentIssues) > 0 {
		b.WriteString("\n## Alignment issues\n\n")
		for _, issue := range state.AlignmentIssues {
			fmt.Fprintf(&b, "- turn %d: %s\n", issue.TurnIndex, issue.Reason)
		}
	}
	return b.String()
}

func renderTranscript(w io.Writer, state *sim.RunState) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	out, err := renderer.Render(transcriptMarkdown(state))
	if err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
