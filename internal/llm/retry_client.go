package llm

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

// RetryConfig tunes the retry decorator.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// RetryClient retries retryable failures with capped exponential backoff and
// jitter. Fatal errors and context cancellation stop immediately; exhausting
// the attempt budget surfaces the last error.
type RetryClient struct {
	inner  Client
	cfg    RetryConfig
	logger *logging.Logger
	sleep  func(context.Context, time.Duration) error

	mu   sync.Mutex
	rand *rand.Rand
}

// NewRetryClient wraps inner with retry behavior.
func NewRetryClient(inner Client, cfg RetryConfig, logger *logging.Logger) *RetryClient {
	if inner == nil {
		panic("llm: inner client cannot be nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryClient{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Complete runs the request with up to MaxAttempts tries.
func (c *RetryClient) Complete(ctx context.Context, req Request) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Warn("llm: retrying after transient failure",
				"attempt", attempt+1, "max_attempts", c.cfg.MaxAttempts,
				"delay", delay.String(), "error", lastErr.Error())
			if err := c.sleep(ctx, delay); err != nil {
				return Completion{}, lastErr
			}
		}

		resp, err := c.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) || ctx.Err() != nil {
			return Completion{}, err
		}
		lastErr = err
	}
	return Completion{}, lastErr
}

// backoff computes base*2^(attempt-1) with up to 25% positive jitter, capped.
func (c *RetryClient) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseBackoff << (attempt - 1)
	if delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}
	c.mu.Lock()
	jitter := time.Duration(c.rand.Int63n(int64(delay)/4 + 1))
	c.mu.Unlock()
	if delay+jitter > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
