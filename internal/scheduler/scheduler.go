package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler triggers ingestion cycles on a fixed interval and on manual
// demand, enforcing single-flight execution: if a cycle is already
// running when the timer fires or TriggerNow is called, the trigger is
// logged and dropped, never queued.
type Scheduler struct {
	interval time.Duration
	run      func(context.Context)
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool

	stopCh    chan struct{}
	triggerCh chan struct{}
}

// New creates a Scheduler that invokes run for every cycle.
func New(interval time.Duration, run func(context.Context), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval:  interval,
		run:       run,
		logger:    logger,
		stopCh:    make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start runs one cycle immediately, then arms the periodic timer.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("polling started", "interval", s.interval)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	s.dispatch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx)
		case <-s.triggerCh:
			s.dispatch(ctx)
		}
	}
}

// dispatch starts a cycle unless one is already in flight. The cycle
// runs on a context detached from cancellation: shutdown stops the loop
// from starting new cycles, but the one in flight completes on its own.
func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.tryBegin() {
		s.logger.Info("cycle already running, skipping trigger")
		return
	}

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.end()
		s.run(runCtx)
	}()
}

func (s *Scheduler) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// TriggerNow requests an out-of-band cycle. It never blocks; a request
// arriving while a cycle is running is a logged no-op.
func (s *Scheduler) TriggerNow() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.mu.Unlock()
		s.logger.Info("cycle already running, skipping manual trigger")
		return
	}
	s.mu.Unlock()

	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Stop disarms the timer. It is idempotent, safe from signal context,
// and does not wait for an in-flight cycle: the cycle finishes on its
// own, but no new one starts afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.logger.Info("polling stopped")
}

// Running reports whether a cycle is currently in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
