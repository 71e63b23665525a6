package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alignsim/alignsim/internal/logging"
	"github.com/alignsim/alignsim/internal/plan"
)

// Outline bounds used for the judge-facing, post-execution plan view.
const (
	orchestratorOutlineDepth = 4
	orchestratorOutlineNodes = 80
)

const defaultHistoryLimit = 10

func preview(text string) string {
	const limit = 120
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}

// UserTurnGenerator is the simulated-user contract consumed by the
// orchestrator. The session is the per-turn plan view for the run being
// advanced.
type UserTurnGenerator interface {
	GenerateTurn(ctx context.Context, session *plan.Session, goal string, cfg RunConfig, previous []Turn) (UserTurn, error)
}

// TurnJudge is the judge contract consumed by the orchestrator.
type TurnJudge interface {
	Evaluate(ctx context.Context, outline, goal string, desired *ActionSpec, assistant AssistantTurn) (*Verdict, error)
}

// Orchestrator sequences one simulation turn: simulated user, assistant,
// judge. Every turn works on its own clone of the base session bound to the
// run's plan, so concurrently advancing runs never share plan state.
type Orchestrator struct {
	base         *plan.Session
	user         UserTurnGenerator
	judge        TurnJudge
	newAssistant AssistantFactory
	defaultGoal  string
	historyLimit int
	log          zerolog.Logger
}

// OrchestratorOption adjusts orchestrator construction.
type OrchestratorOption func(*Orchestrator)

// WithDefaultGoal overrides the fallback improvement goal.
func WithDefaultGoal(goal string) OrchestratorOption {
	return func(o *Orchestrator) {
		if strings.TrimSpace(goal) != "" {
			o.defaultGoal = goal
		}
	}
}

// WithHistoryLimit bounds the assistant-visible message history.
func WithHistoryLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// NewOrchestrator wires the turn pipeline over a base plan session that each
// turn clones.
func NewOrchestrator(session *plan.Session, user UserTurnGenerator, judge TurnJudge, factory AssistantFactory, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		base:         session,
		user:         user,
		judge:        judge,
		newAssistant: factory,
		defaultGoal:  DefaultGoal,
		historyLimit: defaultHistoryLimit,
		log:          logging.Component("sim.orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// sessionFor clones the base session and binds the clone to the run's plan.
// The base session is never mutated.
func (o *Orchestrator) sessionFor(ctx context.Context, planID *int64) (*plan.Session, error) {
	session := o.base.Clone()
	if planID == nil {
		session.Detach()
		return session, nil
	}
	if err := session.Bind(ctx, *planID); err != nil {
		return nil, fmt.Errorf("bind plan session: %w", err)
	}
	return session, nil
}

func (o *Orchestrator) resolveGoal(goal string) string {
	if text := strings.TrimSpace(goal); text != "" {
		return text
	}
	return o.defaultGoal
}

func (o *Orchestrator) buildHistory(state *RunState) []ChatMessage {
	history := make([]ChatMessage, 0, len(state.Turns)*2)
	for i := range state.Turns {
		history = append(history,
			ChatMessage{Role: "user", Content: state.Turns[i].User.Message},
			ChatMessage{Role: "assistant", Content: state.Turns[i].Assistant.Reply},
		)
	}
	if len(history) > o.historyLimit {
		history = history[len(history)-o.historyLimit:]
	}
	return history
}

// dispatchAssistant runs the assistant over its own clone of the turn
// session, then refreshes the turn session so the judge observes the
// assistant's mutations. The post-dispatch refresh is best effort.
func (o *Orchestrator) dispatchAssistant(ctx context.Context, session *plan.Session, message string, state *RunState) (AssistantTurn, error) {
	isolated := session.Clone()
	if isolated.Bound() {
		if _, err := isolated.Refresh(ctx); err != nil {
			return AssistantTurn{}, fmt.Errorf("prepare assistant session: %w", err)
		}
	}

	assistant := o.newAssistant(isolated, o.buildHistory(state))
	result, err := assistant.Handle(ctx, message)
	if err != nil {
		return AssistantTurn{}, fmt.Errorf("assistant call: %w", err)
	}

	if session.Bound() {
		bestEffort(o.log, "refresh turn session", struct{}{}, func() (struct{}, error) {
			_, err := session.Refresh(ctx)
			return struct{}{}, err
		})
	}

	actions := make([]ActionSpec, 0, len(result.Steps))
	for _, step := range result.Steps {
		action := step.Action
		success := step.Success
		action.Success = &success
		action.ResultMessage = step.Message
		actions = append(actions, action)
	}
	return AssistantTurn{Reply: result.Reply, Actions: actions, RawResponse: result.Raw}, nil
}

// RunTurn executes one full turn and appends it to state. Any stage failure
// propagates to the caller; the registry is responsible for converting it
// into an errored run.
func (o *Orchestrator) RunTurn(ctx context.Context, state *RunState) (Turn, error) {
	turnIndex := len(state.Turns) + 1
	logger := o.log.With().Str("run_id", state.RunID).Int("turn", turnIndex).Logger()

	session, err := o.sessionFor(ctx, state.Config.PlanID)
	if err != nil {
		return Turn{}, err
	}
	goal := o.resolveGoal(state.Config.ImprovementGoal)

	userTurn, err := o.user.GenerateTurn(ctx, session, goal, state.Config, state.Turns)
	if err != nil {
		return Turn{}, err
	}
	logger.Info().Str("message", preview(userTurn.Message)).Msg("simulated user message")

	assistantTurn, err := o.dispatchAssistant(ctx, session, userTurn.Message, state)
	if err != nil {
		return Turn{}, err
	}
	for i := range assistantTurn.Actions {
		action := &assistantTurn.Actions[i]
		logger.Info().
			Str("kind", action.Kind).
			Str("name", action.Name).
			Bool("success", action.Success != nil && *action.Success).
			Msg("assistant action")
	}

	outline := session.Outline(ctx, orchestratorOutlineDepth, orchestratorOutlineNodes)
	verdict, err := o.judge.Evaluate(ctx, outline, goal, userTurn.DesiredAction, assistantTurn)
	if err != nil {
		return Turn{}, err
	}
	logger.Info().Str("alignment", string(verdict.Alignment)).Msg("judge verdict")

	state.Config.ImprovementGoal = goal
	turn := Turn{
		Index:     turnIndex,
		User:      userTurn,
		Assistant: assistantTurn,
		Judge:     verdict,
		Goal:      goal,
	}
	if err := state.AppendTurn(turn); err != nil {
		return Turn{}, err
	}
	return turn, nil
}
