package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alignsim/alignsim/internal/llm"
	"github.com/alignsim/alignsim/internal/logging"
)

// Judge scores alignment between the simulated user's desired action and the
// assistant's actual reply and actions for one turn.
type Judge struct {
	client llm.Client
	model  string
	log    zerolog.Logger
}

// NewJudge builds a judge agent.
func NewJudge(client llm.Client, model string) *Judge {
	return &Judge{
		client: client,
		model:  model,
		log:    logging.Component("sim.judge"),
	}
}

// Evaluate produces a verdict for one turn. A response that cannot be parsed
// as JSON propagates as ErrMalformedResponse; an empty verdict cannot be
// meaningfully defaulted. Everything else degrades: unrecognized alignment
// labels coerce to unclear, blank explanations get a placeholder, and
// unusable confidence values are dropped.
func (j *Judge) Evaluate(ctx context.Context, outline, goal string, desired *ActionSpec, assistant AssistantTurn) (*Verdict, error) {
	prompt := buildJudgePrompt(outline, goal, desired, assistant)

	response, err := j.client.Send(ctx, prompt, llm.WithModel(j.model))
	if err != nil {
		return nil, fmt.Errorf("judge call: %w", err)
	}

	raw, ok := llm.ExtractJSON([]byte(response))
	if !ok {
		return nil, fmt.Errorf("judge response is not JSON: %w", ErrMalformedResponse)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("judge response is not a JSON object: %w", ErrMalformedResponse)
	}

	label, _ := payload["alignment"].(string)
	alignment := CoerceAlignment(label)

	explanation, _ := payload["explanation"].(string)
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		explanation = DefaultExplanation
	}

	verdict := &Verdict{
		Alignment:   alignment,
		Explanation: explanation,
		Confidence:  ClampConfidence(payload["confidence"]),
		RawResponse: payload,
	}
	j.log.Debug().
		Str("alignment", string(verdict.Alignment)).
		Msg("judge verdict")
	return verdict, nil
}
