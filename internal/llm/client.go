// Package llm sends prompts to a language model and returns free text or
// JSON constrained by a schema.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoStructuredOutput means the model answered without the structured
// payload a schema request expects.
var ErrNoStructuredOutput = errors.New("model returned no structured output")

// RateLimitError is returned when a chat exhausted its hourly allowance.
type RateLimitError struct {
	ChatID int64
	Limit  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for chat %d (%d/hour)", e.ChatID, e.Limit)
}

// Request describes one model call.
type Request struct {
	Prompt       string
	SystemPrompt string
	// Schema constrains the answer of AskStructured. SchemaName labels it
	// for backends that need one.
	Schema     json.RawMessage
	SchemaName string
	// ImagePath points at a local image or PDF to include.
	ImagePath string
	// ChatID attributes the call for rate limiting. Zero is not limited.
	ChatID int64
}

type Client interface {
	Ask(ctx context.Context, req Request) (string, error)
	AskStructured(ctx context.Context, req Request) (json.RawMessage, error)
}

// Metrics observes completed model calls.
type Metrics interface {
	ObserveLLMCall(backend, outcome string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLLMCall(string, string, time.Duration) {}

// Decode runs a structured request and unmarshals the result into T.
func Decode[T any](ctx context.Context, c Client, req Request) (T, error) {
	var out T
	raw, err := c.AskStructured(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode structured output: %w", err)
	}
	return out, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNoStructuredOutput):
		return "no_output"
	default:
		return "error"
	}
}
