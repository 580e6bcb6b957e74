package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacopone/brownkit-sub001/internal/config"
	"github.com/jacopone/brownkit-sub001/internal/phases"
)

// RetryPolicy bounds how often a failing task is re-run.
type RetryPolicy struct {
	MaxAttempts    int           // attempts per task, including the first
	InitialBackoff time.Duration // wait before the second attempt
	MaxBackoff     time.Duration // cap on any single wait
	Multiplier     float64       // backoff growth per attempt
	TaskTimeout    time.Duration // bound on one attempt, 0 = none
}

// RetryPolicyFromConfig converts the retry section of the configuration.
func RetryPolicyFromConfig(c config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff.D(),
		MaxBackoff:     c.MaxBackoff.D(),
		Multiplier:     c.Multiplier,
		TaskTimeout:    c.TaskTimeout.D(),
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopError aborts a retry loop without counting as a task failure.
type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

func stop(err error) error { return &stopError{err: err} }

// run calls fn until it succeeds, fails permanently or exhausts the policy.
// Each attempt gets its own timeout. A cancelled ctx ends the loop with the
// context error; onRetry is called before every wait.
func (p RetryPolicy) run(ctx context.Context, sleep sleepFunc, onRetry func(attempt int, err error, wait time.Duration), fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.TaskTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.TaskTimeout)
		}
		err := fn(attemptCtx, attempt)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return nil
		}
		var st *stopError
		if errors.As(err, &st) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timedOut {
			err = fmt.Errorf("attempt timed out after %s: %w", p.TaskTimeout, err)
		}
		if phases.IsPermanent(err) {
			return err
		}
		lastErr = err

		if attempt < maxAttempts {
			wait := p.Backoff(attempt)
			if onRetry != nil {
				onRetry(attempt, err, wait)
			}
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
