package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ogulcanaydogan/pulse/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("alerts", 10*time.Millisecond, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_FailuresDoNotStopLoop(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("alerts", 5*time.Millisecond, 0, func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunForever(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RunOnceTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	s := scheduler.New("alerts", time.Hour, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}, testLogger())

	s.RunOnce(context.Background())
	assert.True(t, sawDeadline.Load())
}

func TestScheduler_RunOnceCancelledParent(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("alerts", time.Hour, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)
	assert.Zero(t, runs.Load())
}
