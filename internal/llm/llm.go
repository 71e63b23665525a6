// Package llm provides the model transport used by the simulation agents.
//
// The contract is deliberately narrow: send one prompt, get the raw text
// back. Retries, rate limiting, and tool use live outside this package.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/alignsim/alignsim/internal/config"
)

const defaultAPIKeyEnv = "GEMINI_API_KEY"

// Client sends a single prompt to a model and returns the raw response text.
type Client interface {
	Send(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Option adjusts a single Send call.
type Option func(*callOptions)

type callOptions struct {
	model       string
	temperature *float32
}

// WithModel overrides the default model for one call.
func WithModel(model string) Option {
	return func(o *callOptions) {
		if strings.TrimSpace(model) != "" {
			o.model = model
		}
	}
}

// WithTemperature sets the sampling temperature for one call.
func WithTemperature(t float32) Option {
	return func(o *callOptions) {
		o.temperature = &t
	}
}

// GenAIClient implements Client over the Google GenAI API.
type GenAIClient struct {
	client       *genai.Client
	defaultModel string
	timeout      time.Duration
}

// NewGenAIClient constructs a GenAI-backed client from configuration.
func NewGenAIClient(ctx context.Context, cfg config.LLMConfig) (*GenAIClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("llm model is required")
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		envKey := strings.TrimSpace(cfg.APIKeyEnv)
		if envKey == "" {
			envKey = defaultAPIKeyEnv
		}
		apiKey = strings.TrimSpace(os.Getenv(envKey))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("llm api key is required (set api_key or api_key_env)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIClient{client: client, defaultModel: model, timeout: cfg.Timeout}, nil
}

// Send executes a single generate-content request.
func (c *GenAIClient) Send(ctx context.Context, prompt string, opts ...Option) (string, error) {
	call := callOptions{model: c.defaultModel}
	for _, opt := range opts {
		opt(&call)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var genCfg *genai.GenerateContentConfig
	if call.temperature != nil {
		genCfg = &genai.GenerateContentConfig{Temperature: call.temperature}
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, call.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("genai generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("genai response did not contain output text")
	}
	return text, nil
}
