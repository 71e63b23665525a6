package sim

import (
	"fmt"
	"strings"
)

func formatAssistantActions(actions []ActionSpec) string {
	if len(actions) == 0 {
		return "- (no actions)"
	}
	lines := make([]string, 0, len(actions))
	for i := range actions {
		lines = append(lines, "- "+FormatAction(&actions[i]))
	}
	return strings.Join(lines, "\n")
}

func formatHistory(turns []Turn) string {
	if len(turns) == 0 {
		return "(no prior turns)"
	}
	blocks := make([]string, 0, len(turns))
	for i := range turns {
		turn := &turns[i]
		judgeLine := "Judge verdict: (pending)"
		if turn.Judge != nil {
			judgeLine = fmt.Sprintf("Judge verdict: %s (%s)", turn.Judge.Alignment, turn.Judge.Explanation)
		}
		blocks = append(blocks, strings.Join([]string{
			"Simulated user: " + turn.User.Message,
			"Desired ACTION: " + FormatAction(turn.User.DesiredAction),
			"Chat agent reply: " + turn.Assistant.Reply,
			formatAssistantActions(turn.Assistant.Actions),
			judgeLine,
		}, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func buildSimulatedUserPrompt(outline, goal, catalog string, previous []Turn, maxActions int) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are simulating a human user collaborating with a planning assistant.

Plan outline:
%s

Current improvement goal:
%s

Available ACTION catalog:
%s

Previous conversation transcript:
%s

Respond with a JSON object containing:
{
  "user_message": "<natural language message in English>",
  "desired_action": {
      "kind": "<action kind from the ACTION catalog>",
      "name": "<action name>",
      "parameters": { ... }
  }
}

Propose at most %d action(s) per turn and avoid repeating requests the assistant already fulfilled.
Do not execute the action; only describe the desired ACTION.
The JSON must be the entire response with no extra commentary.
`, outline, goal, catalog, formatHistory(previous), maxActions))
}

func buildJudgePrompt(outline, goal string, desired *ActionSpec, assistant AssistantTurn) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are the judge overseeing whether the assistant's ACTIONS match the simulated user's intent.

Plan outline:
%s

Improvement goal:
%s

Simulated user's desired ACTION:
%s

Assistant reply:
%s

Assistant ACTIONS:
%s

Return a JSON object:
{
  "alignment": "aligned" | "misaligned" | "unclear",
  "explanation": "<short explanation>",
  "confidence": <number between 0 and 1, optional>
}

Respond with JSON only.
`, outline, goal, FormatAction(desired), assistant.Reply, formatAssistantActions(assistant.Actions)))
}
