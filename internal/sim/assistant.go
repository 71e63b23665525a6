package sim

import (
	"context"

	"github.com/alignsim/alignsim/internal/plan"
)

// ChatMessage is one entry of the assistant-visible conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantStep is one executed action with its outcome.
type AssistantStep struct {
	Action  ActionSpec `json:"action"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
}

// AssistantResult is what the assistant adapter returns for one message.
type AssistantResult struct {
	Reply string         `json:"reply"`
	Steps []AssistantStep `json:"steps"`
	Raw   map[string]any `json:"raw,omitempty"`
}

// Assistant executes one natural-language instruction against the planning
// assistant and reports the actions it performed.
type Assistant interface {
	Handle(ctx context.Context, message string) (*AssistantResult, error)
}

// AssistantFactory builds a per-turn assistant over an isolated plan session
// and a bounded conversation history. The orchestrator calls it once per turn
// so the assistant's session view never aliases the orchestrator's.
type AssistantFactory func(session *plan.Session, history []ChatMessage) Assistant
