package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/CodePulse/internal/config"
)

// SchedulerState is the scheduler's lifecycle phase.
type SchedulerState int

const (
	SchedulerIdle SchedulerState = iota
	SchedulerActive
	SchedulerTimedOut
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerActive:
		return "active"
	case SchedulerTimedOut:
		return "timed_out"
	case SchedulerStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ErrSchedulerActive is returned by Start when the scheduler already runs.
var ErrSchedulerActive = errors.New("scheduler already active")

// Hooks are the scheduler's tick callbacks. Fast runs at the fast cadence
// (status and structured state), Slow at the slow cadence (events, artifacts,
// file index). OnTimeout fires once when the global wall-clock budget is
// exceeded, after all timers have been cancelled.
type Hooks struct {
	Fast      func(ctx context.Context)
	Slow      func(ctx context.Context)
	OnTimeout func(elapsed time.Duration)
}

// Scheduler owns the named repeating pulls of one session and the global
// session timeout. The timeout is checked on every fast tick, so a session
// never outlives its budget by more than one fast interval.
type Scheduler struct {
	fast    time.Duration
	slow    time.Duration
	timeout time.Duration
	now     func() time.Time // for testing

	mu      sync.Mutex
	state   SchedulerState
	cancel  context.CancelFunc
	started time.Time
	wg      sync.WaitGroup
}

// NewScheduler creates an idle scheduler with the configured cadences.
func NewScheduler(cfg config.Poll) *Scheduler {
	return &Scheduler{
		fast:    cfg.FastInterval,
		slow:    cfg.SlowInterval,
		timeout: cfg.SessionTimeout,
		now:     time.Now,
	}
}

// Start transitions to active, fires an immediate tick on both cadences, and
// keeps ticking until Stop, timeout, or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context, h Hooks) error {
	s.mu.Lock()
	if s.state == SchedulerActive {
		s.mu.Unlock()
		return ErrSchedulerActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.state = SchedulerActive
	s.cancel = cancel
	s.started = s.now()
	s.mu.Unlock()

	s.wg.Add(2)
	go s.fastLoop(runCtx, h)
	go s.slowLoop(runCtx, h)
	return nil
}

func (s *Scheduler) fastLoop(ctx context.Context, h Hooks) {
	defer s.wg.Done()

	if h.Fast != nil {
		h.Fast(ctx)
	}

	ticker := time.NewTicker(s.fast)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if elapsed := s.now().Sub(s.started); elapsed > s.timeout {
				s.timeOut(elapsed, h.OnTimeout)
				return
			}
			if h.Fast != nil {
				h.Fast(ctx)
			}
		}
	}
}

func (s *Scheduler) slowLoop(ctx context.Context, h Hooks) {
	defer s.wg.Done()

	if h.Slow != nil {
		h.Slow(ctx)
	}

	ticker := time.NewTicker(s.slow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.Slow != nil {
				h.Slow(ctx)
			}
		}
	}
}

func (s *Scheduler) timeOut(elapsed time.Duration, onTimeout func(time.Duration)) {
	s.mu.Lock()
	if s.state != SchedulerActive {
		s.mu.Unlock()
		return
	}
	s.state = SchedulerTimedOut
	s.cancel()
	s.mu.Unlock()

	slog.Warn("session timed out", "elapsed", elapsed, "budget", s.timeout)
	if onTimeout != nil {
		onTimeout(elapsed)
	}
}

// Stop cancels every timer. Idempotent: stopping an idle, stopped, or
// timed-out scheduler is a no-op. Safe to call from inside a tick callback;
// use Wait from outside to block until the loops exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.state == SchedulerActive {
		s.state = SchedulerStopped
	}
}

// Wait blocks until both tick loops have exited. Must not be called from a
// tick callback.
func (s *Scheduler) Wait() { s.wg.Wait() }

// State returns the scheduler's current phase.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
