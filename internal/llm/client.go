// Package llm is the model gateway: a provider-agnostic completion contract
// with OpenAI and Gemini implementations, automatic provider fallback, and a
// retry decorator for transient failures.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Chat roles on the completion request.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the prompt, oldest first.
type Message struct {
	Role    string
	Content string
}

// Request is a completion request. Zero-valued sampling fields fall back to
// provider defaults.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// TokenUsage reports token accounting when the provider exposes it.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Completion is a successful model response.
type Completion struct {
	Content    string
	StopReason string
	Usage      TokenUsage
}

// Client generates completions. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// ErrEmptyPrompt is returned when a request carries no messages.
var ErrEmptyPrompt = errors.New("llm: request has no messages")

// RetryableError marks a failure worth retrying: timeouts, rate limits, and
// provider-side errors. Anything else is treated as fatal for the attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("llm: retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as retryable.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
