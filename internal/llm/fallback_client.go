package llm

import (
	"context"

	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

// FallbackClient wraps a primary client with a secondary provider. When the
// primary fails the same request is retried against the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. With a nil fallback it
// degenerates to the primary alone.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

// Complete tries the primary, then the fallback. The fallback's error wins
// when both fail since it was the last attempt.
func (c *FallbackClient) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("llm: primary provider failed, attempting fallback",
		"error", err.Error(), "fallback_available", c.fallback != nil)

	if c.fallback == nil || ctx.Err() != nil {
		return Completion{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("llm: fallback provider also failed",
			"primary_error", err.Error(), "fallback_error", fallbackErr.Error())
		return Completion{}, fallbackErr
	}

	c.logger.Info("llm: fallback provider succeeded after primary failure")
	return fallbackResp, nil
}
