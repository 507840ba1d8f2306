package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diag-agent/app/metrics"
)

func TestSchedulerSlotsClamped(t *testing.T) {
	assert.Equal(t, MinSlots, NewScheduler(1, zerolog.Nop(), nil).Slots())
	assert.Equal(t, 8, NewScheduler(8, zerolog.Nop(), nil).Slots())
}

func TestSchedulerInitialDelayEqualsPeriod(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	var first atomic.Int64
	start := time.Now()
	require.NoError(t, s.AddPeriodic("probe", 80*time.Millisecond, func(context.Context) error {
		first.CompareAndSwap(0, int64(time.Since(start)))
		return nil
	}))
	require.NoError(t, s.Start())
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool { return first.Load() != 0 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Duration(first.Load()), 80*time.Millisecond)
}

func TestSchedulerTicksOfOneTaskNeverOverlap(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	var running, maxRunning, ticks atomic.Int32

	require.NoError(t, s.AddPeriodic("slow", 5*time.Millisecond, func(context.Context) error {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		ticks.Add(1)
		return nil
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop(time.Second)
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestSchedulerTasksAreIndependent(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	release := make(chan struct{})
	var fast atomic.Int32

	require.NoError(t, s.AddPeriodic("stuck", 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	require.NoError(t, s.AddPeriodic("fast", 5*time.Millisecond, func(context.Context) error {
		fast.Add(1)
		return nil
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return fast.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	s.Stop(time.Second)
}

func TestSchedulerFailureBoundary(t *testing.T) {
	m := metrics.New()
	s := NewScheduler(3, zerolog.Nop(), m)
	var calls atomic.Int32

	require.NoError(t, s.AddPeriodic("flaky", 5*time.Millisecond, func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	s.Stop(time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TickFailures.WithLabelValues("flaky")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Ticks.WithLabelValues("flaky")), float64(4))
}

func TestSchedulerStopCancelsAfterGrace(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	entered := make(chan struct{})
	var cancelled atomic.Bool
	var once sync.Once

	require.NoError(t, s.AddPeriodic("stuck", 5*time.Millisecond, func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, s.Start())
	<-entered

	start := time.Now()
	drained := s.Stop(100 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, drained)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	s.Wait()
	assert.True(t, cancelled.Load())
}

func TestSchedulerStopDrainsWithinGrace(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	entered := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once

	require.NoError(t, s.AddPeriodic("short", 5*time.Millisecond, func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		time.Sleep(30 * time.Millisecond)
		finished.Store(ctx.Err() == nil)
		return nil
	}))
	require.NoError(t, s.Start())
	<-entered

	assert.True(t, s.Stop(5*time.Second))
	assert.True(t, finished.Load(), "tick completed without cancellation")
}

func TestSchedulerNoTicksAfterStop(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	var calls atomic.Int32
	require.NoError(t, s.AddPeriodic("t", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop(time.Second)
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestSchedulerLifecycleErrors(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	assert.Error(t, s.AddPeriodic("bad", 0, func(context.Context) error { return nil }))

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrSchedulerStarted)
	assert.ErrorIs(t, s.AddPeriodic("late", time.Second, func(context.Context) error { return nil }), ErrSchedulerStarted)

	assert.True(t, s.Stop(time.Second))
	assert.True(t, s.Stop(time.Second), "second stop is a no-op")
	assert.ErrorIs(t, s.Start(), ErrSchedulerStopped)

	idle := NewScheduler(3, zerolog.Nop(), nil)
	assert.True(t, idle.Stop(time.Second), "stop before start")
	assert.ErrorIs(t, idle.Start(), ErrSchedulerStopped)
}

func TestSchedulerWaitTimeout(t *testing.T) {
	s := NewScheduler(3, zerolog.Nop(), nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	require.NoError(t, s.AddPeriodic("stubborn", 5*time.Millisecond, func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}))
	require.NoError(t, s.Start())
	<-started

	assert.False(t, s.Stop(10*time.Millisecond), "tick ignores cancellation")
	assert.False(t, s.WaitTimeout(20*time.Millisecond))

	close(release)
	assert.True(t, s.WaitTimeout(time.Second))
}

func TestSchedulerLogsCarryComponent(t *testing.T) {
	var buf syncBuffer
	s := NewScheduler(3, zerolog.New(&buf), nil)
	require.NoError(t, s.AddPeriodic("failing", 5*time.Millisecond, func(context.Context) error {
		return errors.New("unreachable")
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "Task tick failed")
	}, time.Second, 5*time.Millisecond)
	s.Stop(time.Second)

	assert.Contains(t, buf.String(), `"component":"scheduler"`)
	assert.Contains(t, buf.String(), `"task":"failing"`)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
