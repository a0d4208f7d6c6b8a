// Package retry wraps a single provider call with bounded exponential
// backoff. Only rate-limit and transient-unavailable errors are retried;
// everything else propagates immediately so the orchestrator can decide
// whether to fail over.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/vision"
)

// Handler executes operations with retry. It is stateless and reentrant:
// it holds no information across calls, so one Handler can serve every
// provider concurrently.
type Handler struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	logger *zap.Logger
}

// NewHandler creates a Handler, applying defaults for zero values.
func NewHandler(maxRetries int, baseDelay, maxDelay time.Duration, logger *zap.Logger) *Handler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{MaxRetries: maxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay, logger: logger}
}

// DefaultHandler returns the production policy: 3 retries, 1s base, 60s cap.
func DefaultHandler(logger *zap.Logger) *Handler {
	return NewHandler(3, time.Second, 60*time.Second, logger)
}

// Do runs fn up to MaxRetries+1 times. A rate-limit error sleeps for the
// provider-supplied hint when present, otherwise the exponential schedule;
// a transient-unavailable error always uses the schedule. Any other error
// returns immediately. When attempts are exhausted the last error is
// wrapped and returned.
func (h *Handler) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= h.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				h.logger.Info("call succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		var ve *vision.Error
		if !errors.As(err, &ve) || !ve.Retryable {
			return err
		}
		if attempt == h.MaxRetries {
			break
		}

		delay := h.backoff(attempt)
		if ve.Code == vision.ErrRateLimited && ve.RetryAfter > 0 {
			delay = ve.RetryAfter
		}
		h.logger.Debug("retrying provider call",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", h.MaxRetries),
			zap.Duration("delay", delay),
			zap.String("code", string(ve.Code)),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	h.logger.Warn("retries exhausted",
		zap.Int("attempts", h.MaxRetries+1),
		zap.Error(lastErr))
	return fmt.Errorf("all %d attempts exhausted: %w", h.MaxRetries+1, lastErr)
}

// DoWithResult is the generic variant of Handler.Do for operations that
// return a value.
func DoWithResult[T any](h *Handler, ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := h.Do(ctx, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// backoff computes min(base * 2^attempt, max).
func (h *Handler) backoff(attempt int) time.Duration {
	delay := h.BaseDelay << uint(attempt)
	if delay > h.MaxDelay || delay <= 0 {
		return h.MaxDelay
	}
	return delay
}
