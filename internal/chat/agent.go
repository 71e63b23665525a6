// Package chat implements the structured planning assistant: it asks the
// model for a JSON reply plus an ordered action list and executes those
// actions against a plan session.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alignsim/alignsim/internal/llm"
	"github.com/alignsim/alignsim/internal/logging"
	"github.com/alignsim/alignsim/internal/plan"
	"github.com/alignsim/alignsim/internal/sim"
)

// DefaultMaxHistory bounds the conversation history included in the prompt.
const DefaultMaxHistory = 10

const (
	outlineDepth = 3
	outlineNodes = 40
)

// StructuredAgent is the assistant adapter: one Handle call per user message.
type StructuredAgent struct {
	session    *plan.Session
	client     llm.Client
	model      string
	history    []sim.ChatMessage
	maxHistory int
	log        zerolog.Logger
}

// New builds an agent over the given session and conversation history.
func New(session *plan.Session, client llm.Client, model string, history []sim.ChatMessage) *StructuredAgent {
	return &StructuredAgent{
		session:    session,
		client:     client,
		model:      model,
		history:    history,
		maxHistory: DefaultMaxHistory,
		log:        logging.Component("chat.agent"),
	}
}

// Factory adapts New into the orchestrator's per-turn assistant factory.
func Factory(client llm.Client, model string) sim.AssistantFactory {
	return func(session *plan.Session, history []sim.ChatMessage) sim.Assistant {
		return New(session, client, model, history)
	}
}

type structuredAction struct {
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Order      *int           `json:"order,omitempty"`
}

type structuredResponse struct {
	LLMReply struct {
		Message string `json:"message"`
	} `json:"llm_reply"`
	Actions []structuredAction `json:"actions"`
}

func (r *structuredResponse) sortedActions() []structuredAction {
	actions := append([]structuredAction(nil), r.Actions...)
	sort.SliceStable(actions, func(i, j int) bool {
		oi, oj := actions[i].Order, actions[j].Order
		switch {
		case oi == nil && oj == nil:
			return false
		case oi == nil:
			return false
		case oj == nil:
			return true
		default:
			return *oi < *oj
		}
	})
	return actions
}

// Handle executes one user message: structured LLM response, then each action
// in order. Individual action failures are recorded as failed steps, not
// returned as errors; only an unusable model response fails the call.
func (a *StructuredAgent) Handle(ctx context.Context, message string) (*sim.AssistantResult, error) {
	prompt := a.buildPrompt(ctx, message)
	response, err := a.client.Send(ctx, prompt, llm.WithModel(a.model))
	if err != nil {
		return nil, fmt.Errorf("assistant call: %w", err)
	}

	raw, ok := llm.ExtractJSON([]byte(response))
	if !ok {
		return nil, fmt.Errorf("assistant response is not JSON: %w", sim.ErrMalformedResponse)
	}
	var structured structuredResponse
	if err := json.Unmarshal(raw, &structured); err != nil {
		return nil, fmt.Errorf("assistant response has unexpected shape: %w", sim.ErrMalformedResponse)
	}
	var rawPayload map[string]any
	_ = json.Unmarshal(raw, &rawPayload)

	steps := make([]sim.AssistantStep, 0, len(structured.Actions))
	mutated := false
	for _, item := range structured.sortedActions() {
		action, err := sim.NormalizeAction(item.Kind, item.Name, item.Parameters)
		if err != nil {
			steps = append(steps, sim.AssistantStep{
				Action:  sim.ActionSpec{Kind: item.Kind, Name: item.Name, Parameters: item.Parameters},
				Success: false,
				Message: fmt.Sprintf("invalid action: %v", err),
			})
			continue
		}
		action.Order = item.Order

		result, err := a.executeAction(ctx, action)
		if err != nil {
			a.log.Warn().Err(err).Str("action", action.Name).Msg("action execution failed")
			steps = append(steps, sim.AssistantStep{Action: action, Success: false, Message: err.Error()})
			continue
		}
		mutated = mutated || mutatesPlan(action)
		steps = append(steps, sim.AssistantStep{Action: action, Success: true, Message: result})
	}

	if mutated && a.session.Bound() {
		if _, err := a.session.Refresh(ctx); err != nil {
			a.log.Warn().Err(err).Msg("session refresh after execution failed")
		}
	}

	reply := strings.TrimSpace(structured.LLMReply.Message)
	if reply == "" {
		reply = summarizeSteps(steps)
	}
	return &sim.AssistantResult{Reply: reply, Steps: steps, Raw: rawPayload}, nil
}

func mutatesPlan(action sim.ActionSpec) bool {
	if action.Kind == sim.KindTaskOperation {
		switch action.Name {
		case "show_tasks", "query_status":
			return false
		}
		return true
	}
	return action.Kind == sim.KindPlanOperation && action.Name != "list_plans"
}

func summarizeSteps(steps []sim.AssistantStep) string {
	if len(steps) == 0 {
		return "No actions were taken."
	}
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		status := "done"
		if !step.Success {
			status = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s %s (%s)", step.Action.Name, status, step.Message))
	}
	return "Executed: " + strings.Join(parts, "; ")
}
