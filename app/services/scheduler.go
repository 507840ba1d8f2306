package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"diag-agent/app/logging"
	"diag-agent/app/metrics"
)

// MinSlots is the smallest slot pool a scheduler runs with
const MinSlots = 3

var (
	ErrSchedulerStarted = errors.New("scheduler already started")
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// TaskFunc is one tick of a periodic task
type TaskFunc func(ctx context.Context) error

type periodicTask struct {
	name   string
	period time.Duration
	fn     TaskFunc
}

// Scheduler runs periodic tasks on a bounded pool of slots. Every task has
// its own ticker goroutine, so ticks of one task never overlap while ticks of
// different tasks run independently.
type Scheduler struct {
	slots   *semaphore.Weighted
	size    int
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	tasks   []periodicTask
	started bool
	stopped bool

	// stopCtx ends ticker loops and pending slot waits; tickCtx is the parent
	// of every running tick and is cancelled once the drain grace runs out.
	stopCtx     context.Context
	stopTicking context.CancelFunc
	tickCtx     context.Context
	cancelTicks context.CancelFunc

	loops sync.WaitGroup
}

// NewScheduler creates a scheduler with the given number of slots (at least MinSlots)
func NewScheduler(slots int, logger zerolog.Logger, m *metrics.Metrics) *Scheduler {
	if slots < MinSlots {
		slots = MinSlots
	}
	stopCtx, stopTicking := context.WithCancel(context.Background())
	tickCtx, cancelTicks := context.WithCancel(context.Background())

	return &Scheduler{
		slots:       semaphore.NewWeighted(int64(slots)),
		size:        slots,
		logger:      logging.Component(logger, "scheduler"),
		metrics:     m,
		stopCtx:     stopCtx,
		stopTicking: stopTicking,
		tickCtx:     tickCtx,
		cancelTicks: cancelTicks,
	}
}

// Slots returns the size of the slot pool
func (s *Scheduler) Slots() int {
	return s.size
}

// AddPeriodic registers a task. The first tick fires one period after Start.
func (s *Scheduler) AddPeriodic(name string, period time.Duration, fn TaskFunc) error {
	if period <= 0 {
		return fmt.Errorf("task %s: period must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return ErrSchedulerStarted
	}
	s.tasks = append(s.tasks, periodicTask{name: name, period: period, fn: fn})
	return nil
}

// Start launches one ticker goroutine per registered task
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return ErrSchedulerStarted
	}
	s.started = true

	for _, t := range s.tasks {
		s.loops.Add(1)
		go s.loop(t)
	}

	s.logger.Debug().Int("tasks", len(s.tasks)).Int("slots", s.size).Msg("Scheduler started")
	return nil
}

func (s *Scheduler) loop(t periodicTask) {
	defer s.loops.Done()

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCtx.Done():
			return
		case <-ticker.C:
			s.tick(t)
		}
	}
}

func (s *Scheduler) tick(t periodicTask) {
	if err := s.slots.Acquire(s.stopCtx, 1); err != nil {
		return
	}
	defer s.slots.Release(1)

	// Stop may have won the race with the ticker
	if s.stopCtx.Err() != nil {
		return
	}

	if s.metrics != nil {
		s.metrics.Ticks.WithLabelValues(t.name).Inc()
		s.metrics.InFlightTicks.Inc()
		defer s.metrics.InFlightTicks.Dec()
	}

	if err := s.runGuarded(t); err != nil {
		if s.metrics != nil {
			s.metrics.TickFailures.WithLabelValues(t.name).Inc()
		}
		s.logger.Warn().Err(err).Str("task", t.name).Msg("Task tick failed")
	}
}

// runGuarded is the failure boundary of a tick: errors and panics are
// returned so the next tick still runs.
func (s *Scheduler) runGuarded(t periodicTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("task", t.name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Task tick panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.fn(s.tickCtx)
}

// Stop stops issuing ticks, waits up to grace for in-flight ticks and then
// cancels their contexts. It reports whether every tick finished within
// grace. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop(grace time.Duration) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return true
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.stopTicking()
	if !started {
		s.cancelTicks()
		return true
	}

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		s.cancelTicks()
		s.logger.Debug().Msg("Scheduler drained")
		return true
	case <-timer.C:
		s.cancelTicks()
		s.logger.Warn().Dur("grace", grace).Msg("Grace period elapsed, cancelled in-flight ticks")
		return false
	}
}

// Wait blocks until every ticker goroutine, including force-cancelled ticks, has returned
func (s *Scheduler) Wait() {
	s.loops.Wait()
}

// WaitTimeout is Wait bounded by d. It reports whether the loops returned.
func (s *Scheduler) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
