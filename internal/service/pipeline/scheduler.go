package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"loan-pipeline/internal/domain"
)

// Scheduler triggers a pipeline job on a cron schedule. Runs never overlap:
// a tick that fires while the previous run is still in flight is skipped,
// which keeps loads into the same RAW table serialized.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	job      func(ctx context.Context) error
	logger   *slog.Logger

	ctx      context.Context
	running  sync.Mutex
	skipWarn rate.Sometimes

	mu      sync.Mutex
	runs    int
	skipped int
}

// NewScheduler validates schedule (standard 5-field cron or a descriptor such
// as "@daily") and registers job on it.
func NewScheduler(schedule string, job func(ctx context.Context) error, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		job:      job,
		logger:   logger.With("schedule", schedule),
		ctx:      context.Background(),
		skipWarn: rate.Sometimes{First: 1, Interval: 10 * time.Minute},
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, domain.ErrInvalidConfiguration("invalid cron schedule %q: %v", schedule, err)
	}
	return s, nil
}

// Next returns the next activation time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(t)
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// an in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "next", s.Next(time.Now()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("pipeline scheduler stopped")
	return nil
}

// Stats returns how many runs were started and how many ticks were skipped.
func (s *Scheduler) Stats() (runs, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.skipped
}

func (s *Scheduler) skippedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.skipWarn.Do(func() {
			s.logger.Warn("previous run still in progress, skipping tick", "skipped", s.skippedCount())
		})
		return
	}
	defer s.running.Unlock()

	s.mu.Lock()
	s.runs++
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "kind", domain.ErrorKind(err), "error", err)
		return
	}
	s.logger.Info("scheduled run succeeded")
}
