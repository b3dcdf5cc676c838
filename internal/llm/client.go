// Package llm wraps the generative model behind a small invoker contract:
// single-shot generation, incremental (streamed) generation, and an adapter
// that replays a single-shot result as a fragment stream. The orchestrator
// owns persistence and retry policy; this package only performs the call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/prompt"
)

// ErrModelFailure is the sentinel wrapped around every external generation
// failure (timeout, quota, auth). Callers decide retry policy.
var ErrModelFailure = errors.New("model call failed")

// Options configures the OpenAI-compatible backend.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client invokes a langchaingo model. The underlying llms.Model is an
// explicit dependency so tests can substitute a fake.
type Client struct {
	model llms.Model
	name  string
}

// New dials an OpenAI-compatible endpoint.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("model API key required")
	}
	cfg := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		cfg = append(cfg, openai.WithBaseURL(opts.BaseURL))
	}
	m, err := openai.New(cfg...)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return &Client{model: m, name: opts.Model}, nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(m llms.Model, name string) *Client {
	return &Client{model: m, name: name}
}

// Name returns the configured model name.
func (c *Client) Name() string { return c.name }

// Generate performs a single-shot call and returns the completed text.
// Failures wrap ErrModelFailure; there is no retry here.
func (c *Client) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	resp, err := c.model.GenerateContent(ctx, toMessages(p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrModelFailure)
	}
	return resp.Choices[0].Content, nil
}

// GenerateStream performs an incremental call, feeding fragments to fn in
// order as they arrive, and returns the full text. A mid-stream failure (or
// an error from fn, including cancellation) aborts the stream and wraps
// ErrModelFailure; fragments are never skipped or duplicated.
func (c *Client) GenerateStream(ctx context.Context, p prompt.Prompt, fn func(fragment string) error) (string, error) {
	resp, err := c.model.GenerateContent(ctx, toMessages(p),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrModelFailure)
	}
	return resp.Choices[0].Content, nil
}

// toMessages flattens the assembled prompt into langchaingo chat messages.
func toMessages(p prompt.Prompt) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(p.Turns)+1)
	out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	for _, t := range p.Turns {
		role := llms.ChatMessageTypeHuman
		if t.Role == domain.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, t.Content))
	}
	return out
}

// EstimateTokens is a rough rune-based token estimate recorded in message
// metadata. It is a heuristic, not billing data.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
