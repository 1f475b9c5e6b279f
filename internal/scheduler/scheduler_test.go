package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartRunsImmediately(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Hour, func(context.Context) { runs.Add(1) }, slog.Default())
	defer s.Stop()

	s.Start(context.Background())
	waitFor(t, func() bool { return runs.Load() == 1 }, "initial cycle never ran")
}

func TestSingleFlight(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	s := New(time.Hour, func(context.Context) {
		started.Add(1)
		<-release
	}, slog.Default())
	defer s.Stop()

	s.Start(context.Background())
	waitFor(t, s.Running, "cycle never started")

	// Triggers while a cycle is in flight are dropped, not queued.
	for i := 0; i < 5; i++ {
		s.TriggerNow()
	}
	time.Sleep(50 * time.Millisecond)
	if n := started.Load(); n != 1 {
		t.Fatalf("expected 1 running cycle, got %d", n)
	}

	close(release)
	waitFor(t, func() bool { return !s.Running() }, "cycle never finished")

	// Once idle, a manual trigger starts a fresh cycle.
	s.TriggerNow()
	waitFor(t, func() bool { return started.Load() == 2 }, "trigger after idle never ran")
}

func TestStopPreventsNewCycles(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Hour, func(context.Context) { runs.Add(1) }, slog.Default())

	s.Start(context.Background())
	waitFor(t, func() bool { return runs.Load() == 1 }, "initial cycle never ran")

	s.Stop()
	s.Stop() // idempotent

	s.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Fatalf("cycle ran after stop: %d", n)
	}
}

func TestInFlightCycleSurvivesShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var canceled atomic.Bool

	s := New(time.Hour, func(ctx context.Context) {
		close(started)
		<-release
		canceled.Store(ctx.Err() != nil)
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-started

	// Shutdown arrives mid-cycle: no new cycles, but the running one
	// keeps a live context until it finishes on its own.
	cancel()
	s.Stop()
	close(release)

	waitFor(t, func() bool { return !s.Running() }, "cycle never finished")
	if canceled.Load() {
		t.Fatal("shutdown canceled the in-flight cycle's context")
	}
}

func TestPeriodicTicks(t *testing.T) {
	var runs atomic.Int32
	s := New(20*time.Millisecond, func(context.Context) { runs.Add(1) }, slog.Default())
	defer s.Stop()

	s.Start(context.Background())
	waitFor(t, func() bool { return runs.Load() >= 3 }, "timer cycles never accumulated")
}
