// Package pipeline is the local pipeline runner: ingest, transform, then
// gate, aborting on the first failed step.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loan-pipeline/internal/domain"
)

// Step is one named stage of a pipeline run.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports which step aborted a run.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes steps in order. A failed step is retried up to Retries
// times with exponential backoff (1s, 2s, 4s...) unless its error is not
// retryable.
type Runner struct {
	Retries int

	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a new Runner.
func NewRunner(retries int, logger *slog.Logger) *Runner {
	return &Runner{Retries: retries, logger: logger, sleep: sleepContext}
}

// Run executes steps sequentially and stops at the first step that still
// fails after its retries. The returned error is a *StepError wrapping the
// step's last error.
func (r *Runner) Run(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if err := r.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	logger := r.logger.With("step", step.Name)
	maxAttempts := r.Retries + 1

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s...
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			logger.Info("retrying step", "attempt", attempt+1, "backoff", backoff)
			if err := r.sleep(ctx, backoff); err != nil {
				return &StepError{Step: step.Name, Attempts: attempt, Err: lastErr}
			}
		}
		attempt++

		start := time.Now()
		lastErr = step.Run(ctx)
		if lastErr == nil {
			logger.Info("step completed", "attempt", attempt, "duration", time.Since(start))
			return nil
		}
		logger.Warn("step attempt failed", "attempt", attempt,
			"kind", domain.ErrorKind(lastErr), "error", lastErr)
		if !domain.IsRetryable(lastErr) {
			break
		}
	}

	logger.Error("step failed", "attempts", attempt, "error", lastErr)
	return &StepError{Step: step.Name, Attempts: attempt, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
