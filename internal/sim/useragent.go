package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alignsim/alignsim/internal/llm"
	"github.com/alignsim/alignsim/internal/logging"
	"github.com/alignsim/alignsim/internal/plan"
)

// DefaultGoal is the process-wide fallback improvement goal.
const DefaultGoal = "Refine the currently bound plan to better achieve the user's objectives."

// Outline bounds used when rendering plan context into agent prompts.
const (
	agentOutlineDepth = 3
	agentOutlineNodes = 40
)

// simUserTemperature keeps sampling low to reduce duplicate or errant
// requests across turns.
const simUserTemperature float32 = 0.1

// UserAgent produces the next synthetic user utterance plus a single desired
// action, applying the create-task deduplication rule. The plan session is
// supplied per call so concurrent runs never share plan state.
type UserAgent struct {
	client llm.Client
	model  string
	log    zerolog.Logger
}

// NewUserAgent builds a simulated user over the given model.
func NewUserAgent(client llm.Client, model string) *UserAgent {
	return &UserAgent{
		client: client,
		model:  model,
		log:    logging.Component("sim.user"),
	}
}

func (a *UserAgent) planOutline(ctx context.Context, session *plan.Session) string {
	return bestEffort(a.log, "plan outline", "(plan outline unavailable)", func() (string, error) {
		return session.Outline(ctx, agentOutlineDepth, agentOutlineNodes), nil
	})
}

// GenerateTurn asks the model for the next user message and desired action.
// The goal must already be resolved by the caller; an empty goal falls back
// to DefaultGoal.
func (a *UserAgent) GenerateTurn(ctx context.Context, session *plan.Session, goal string, cfg RunConfig, previous []Turn) (UserTurn, error) {
	if strings.TrimSpace(goal) == "" {
		goal = DefaultGoal
	}
	maxActions := cfg.MaxActionsPerTurn
	if maxActions < 1 || maxActions > 2 {
		maxActions = 1
	}
	catalog := BuildActionCatalog(session.Bound(), cfg)
	prompt := buildSimulatedUserPrompt(a.planOutline(ctx, session), goal, catalog, previous, maxActions)

	response, err := a.client.Send(ctx, prompt,
		llm.WithModel(a.model),
		llm.WithTemperature(simUserTemperature),
	)
	if err != nil {
		return UserTurn{}, fmt.Errorf("simulated user call: %w", err)
	}

	raw, ok := llm.ExtractJSON([]byte(response))
	if !ok {
		return UserTurn{}, fmt.Errorf("simulated user response is not JSON: %w", ErrMalformedResponse)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return UserTurn{}, fmt.Errorf("simulated user response is not a JSON object: %w", ErrMalformedResponse)
	}

	message, _ := payload["user_message"].(string)
	message = strings.TrimSpace(message)
	if message == "" {
		return UserTurn{}, fmt.Errorf("simulated user response missing user_message: %w", ErrValidation)
	}

	action := a.parseDesiredAction(payload["desired_action"])
	if rewritten, changed := a.dedupeCreate(ctx, session, action); changed {
		action = rewritten
		message = rewriteMessage(rewritten)
		a.log.Info().
			Str("action", rewritten.Name).
			Msg("dedup rewrote desired action; user message rewritten to match")
	}

	return UserTurn{Message: message, DesiredAction: action, RawResponse: payload}, nil
}

// parseDesiredAction normalizes the raw desired_action payload. Failures are
// logged and treated as "no action" so the turn still produces a message.
func (a *UserAgent) parseDesiredAction(raw any) *ActionSpec {
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return bestEffort(a.log, "normalize desired_action", (*ActionSpec)(nil), func() (*ActionSpec, error) {
		kind, _ := payload["kind"].(string)
		name, _ := payload["name"].(string)
		params, _ := payload["parameters"].(map[string]any)
		action, err := NormalizeAction(kind, name, params)
		if err != nil {
			return nil, err
		}
		if blocking, ok := payload["blocking"].(bool); ok {
			action.Blocking = blocking
		}
		if order, ok := payload["order"].(float64); ok {
			v := int(order)
			action.Order = &v
		}
		return &action, nil
	})
}

// dedupeCreate rewrites a create_task that targets an existing sibling with
// the same trimmed, case-folded name into an update_task_instruction on that
// sibling. Any failure during the check keeps the original action; the dedup
// rule never blocks turn generation.
func (a *UserAgent) dedupeCreate(ctx context.Context, session *plan.Session, action *ActionSpec) (*ActionSpec, bool) {
	if action == nil || action.Kind != KindTaskOperation || action.Name != ActionCreateTask {
		return action, false
	}
	name := strings.TrimSpace(action.StringParam("name"))
	if name == "" {
		return action, false
	}

	type match struct {
		rewritten *ActionSpec
	}
	result := bestEffort(a.log, "dedup check", match{rewritten: nil}, func() (match, error) {
		tree, err := session.CurrentTree(ctx)
		if err != nil {
			return match{}, err
		}
		var parentID *int64
		if id, ok := action.IntParam("parent_id"); ok {
			parentID = &id
		}
		existing := tree.FindChild(parentID, name)
		if existing == nil {
			return match{}, nil
		}
		params := map[string]any{"task_id": existing.ID}
		if instr := strings.TrimSpace(action.StringParam("instruction")); instr != "" {
			params["instruction"] = instr
		}
		a.log.Info().
			Int64("task_id", existing.ID).
			Msg("dedup: converting create_task to update_task_instruction on existing task")
		return match{rewritten: &ActionSpec{
			Kind:       KindTaskOperation,
			Name:       ActionUpdateTaskInstruction,
			Parameters: params,
			Blocking:   action.Blocking,
			Order:      action.Order,
		}}, nil
	})

	if result.rewritten == nil {
		return action, false
	}
	return result.rewritten, true
}

// rewriteMessage restates the user message after a dedup rewrite so the
// utterance linguistically matches the rewritten action.
func rewriteMessage(action *ActionSpec) string {
	if action.Kind == KindTaskOperation && action.Name == ActionUpdateTaskInstruction {
		instr := action.StringParam("instruction")
		if taskID, ok := action.IntParam("task_id"); ok {
			return fmt.Sprintf("I want to update existing task [%d] to refine its instruction: %s", taskID, instr)
		}
		return fmt.Sprintf("I want to update an existing task to refine its instruction: %s", instr)
	}
	params, _ := json.Marshal(action.Parameters)
	return fmt.Sprintf("I want to perform %s/%s with parameters %s", action.Kind, action.Name, params)
}
