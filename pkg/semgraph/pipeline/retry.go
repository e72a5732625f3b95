package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgtm-project/dgtm/pkg/semgraph"
)

// Retry calls fn up to maxTries times with exponential backoff between
// attempts, for transient storage failures. Validation, consistency
// and capacity errors are never retried; they are deterministic.
// Returns the last error once attempts are exhausted.
func Retry(ctx context.Context, maxTries int, base time.Duration, fn func(context.Context) error) error {
	if maxTries <= 0 {
		maxTries = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	var lastErr error
	delay := base
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if i < maxTries-1 {
			slog.Warn("transient failure, backing off",
				"attempt", i+1,
				"max", maxTries,
				"delay", delay.String(),
				"error", err,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return lastErr
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, semgraph.ErrValidation),
		errors.Is(err, semgraph.ErrRuleConflict),
		errors.Is(err, semgraph.ErrConsistency),
		errors.Is(err, semgraph.ErrCapacityExceeded),
		errors.Is(err, semgraph.ErrInvalidInput),
		errors.Is(err, semgraph.ErrNotFound):
		return false
	}
	return true
}
