package llm

import (
	"context"

	"github.com/ymzhao/go-car-advisor/internal/prompt"
)

// maxFragmentRunes bounds fragment size for text without word boundaries
// (Chinese replies stream in rune-sized chunks rather than one blob).
const maxFragmentRunes = 8

// Generator is the single-shot half of the invoker contract.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
	Name() string
}

// SingleShotStreamer adapts a single-shot generator to the streaming
// contract by replaying the completed text as word-sized fragments. It keeps
// the consumer contract identical to a real streaming backend, so swapping
// one in later does not touch the orchestrator.
type SingleShotStreamer struct {
	Generator Generator
}

// Name returns the wrapped generator's model name.
func (s SingleShotStreamer) Name() string { return s.Generator.Name() }

// Generate passes through to the wrapped generator.
func (s SingleShotStreamer) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	return s.Generator.Generate(ctx, p)
}

// GenerateStream performs one single-shot call, then feeds the result to fn
// as ordered fragments. Caller cancellation between fragments aborts the
// replay; the full text is returned only when every fragment was delivered.
func (s SingleShotStreamer) GenerateStream(ctx context.Context, p prompt.Prompt, fn func(fragment string) error) (string, error) {
	full, err := s.Generator.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	if err := StreamFragments(ctx, full, fn); err != nil {
		return "", err
	}
	return full, nil
}

// StreamFragments splits text into word-sized fragments and delivers them to
// fn in order. Fragments concatenate exactly to the input. Delivery stops on
// context cancellation or the first fn error.
func StreamFragments(ctx context.Context, text string, fn func(fragment string) error) error {
	for _, frag := range splitFragments(text) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(frag); err != nil {
			return err
		}
	}
	return nil
}

// splitFragments cuts text after each space, sub-chunking long space-free
// runs (e.g. Chinese) into maxFragmentRunes pieces.
func splitFragments(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	runes := []rune(text)
	start := 0
	count := 0
	for i, r := range runes {
		count++
		if r == ' ' || count >= maxFragmentRunes {
			out = append(out, string(runes[start:i+1]))
			start = i + 1
			count = 0
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
