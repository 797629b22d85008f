// Package scheduler runs the alert job in-process on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a job immediately and then once per interval until its
// context is cancelled. Runs never overlap.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	job      Job
	logger   *slog.Logger
}

// New creates a scheduler. A zero timeout lets a run take a full interval.
func New(name string, interval, timeout time.Duration, job Job, logger *slog.Logger) *Scheduler {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		timeout:  timeout,
		job:      job,
		logger:   logger.With("job", name),
	}
}

// RunForever blocks until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval.String())
	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs the job under the scheduler timeout and logs its outcome.
func (s *Scheduler) RunOnce(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.job(ctx)
	switch {
	case err == nil:
		s.logger.Debug("scheduled run finished", "duration", time.Since(start).String())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("scheduled run timed out", "timeout", s.timeout.String())
	default:
		s.logger.Error("scheduled run failed", "error", err)
	}
}
