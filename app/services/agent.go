package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"diag-agent/app/domains"
	"diag-agent/app/logging"
	"diag-agent/app/metrics"
	"diag-agent/app/storage"
)

// State is the agent lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateRegistering
	StateRunning
	StateFailed
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRegistering:
		return "registering"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	ErrRegistrationFailed = errors.New("registration failed")
	ErrAlreadyStarted     = errors.New("agent already started")
	ErrNotRunning         = errors.New("agent not running")
)

const (
	journalCleanupInterval = time.Hour
	// maxCancelSettle caps the share of the shutdown grace reserved for
	// cancelled ticks to submit their results
	maxCancelSettle = 5 * time.Second
)

// splitGrace divides the shutdown grace into a drain period followed by a
// settle period for cancelled ticks. The two always sum to grace.
func splitGrace(grace time.Duration) (drain, settle time.Duration) {
	settle = min(grace/4, maxCancelSettle)
	return grace - settle, settle
}

// Options configure an Agent
type Options struct {
	Identity      domains.Identity
	Channel       Channel
	Runner        CommandRunner
	Journal       storage.Journal
	IdentityStore IdentityStore
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger

	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	ShutdownGrace     time.Duration
	JournalRetention  time.Duration
	WorkerCount       int
}

// Agent registers with the coordinator and then runs the heartbeat and
// poll-and-execute loops until stopped.
type Agent struct {
	opts   Options
	logger zerolog.Logger

	mu            sync.Mutex
	state         State
	stopRequested bool
	scheduler     *Scheduler
	startedAt     time.Time

	stats agentStats
}

type agentStats struct {
	lastHeartbeat     atomic.Int64
	lastPoll          atomic.Int64
	heartbeatFailures atomic.Int64
	pollFailures      atomic.Int64
	commandsSucceeded atomic.Int64
	commandsFailed    atomic.Int64
	submitFailures    atomic.Int64
}

// NewAgent creates an agent in the Uninitialized state
func NewAgent(opts Options) *Agent {
	if opts.Journal == nil {
		opts.Journal = storage.NopJournal{}
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ShutdownGrace < 0 {
		opts.ShutdownGrace = 0
	}

	return &Agent{
		opts:   opts,
		logger: logging.Component(opts.Logger, "agent").With().Str("container_id", opts.Identity.ContainerID).Logger(),
		state:  StateUninitialized,
	}
}

// State returns the current lifecycle state
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Identity returns the immutable agent identity
func (a *Agent) Identity() domains.Identity {
	return a.opts.Identity
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.reportUp(s)
}

func (a *Agent) reportUp(s State) {
	if a.opts.Metrics == nil {
		return
	}
	if s == StateRunning {
		a.opts.Metrics.AgentUp.Set(1)
	} else {
		a.opts.Metrics.AgentUp.Set(0)
	}
}

// Start registers the agent and schedules its periodic tasks. Registration
// is attempted once; on failure the agent moves to Failed and nothing is
// scheduled.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateUninitialized {
		state := a.state
		a.mu.Unlock()
		if state == StateStopped {
			return ErrNotRunning
		}
		return ErrAlreadyStarted
	}
	a.state = StateRegistering
	a.mu.Unlock()

	a.sweepJournal(ctx)

	if err := a.register(ctx); err != nil {
		a.setState(StateFailed)
		return err
	}

	scheduler := NewScheduler(a.opts.WorkerCount, a.opts.Logger, a.opts.Metrics)
	tasks := []periodicTask{
		{name: "heartbeat", period: a.opts.HeartbeatInterval, fn: a.heartbeatTick},
		{name: "poll", period: a.opts.PollInterval, fn: a.pollTick},
	}
	if a.opts.JournalRetention > 0 {
		tasks = append(tasks, periodicTask{name: "journal-cleanup", period: journalCleanupInterval, fn: a.cleanupTick})
	}
	for _, t := range tasks {
		if err := scheduler.AddPeriodic(t.name, t.period, t.fn); err != nil {
			a.setState(StateFailed)
			return err
		}
	}

	a.mu.Lock()
	if a.stopRequested {
		a.state = StateStopped
		a.mu.Unlock()
		a.reportUp(StateStopped)
		a.logger.Info().Msg("Stop requested during registration, not scheduling tasks")
		return nil
	}
	if err := scheduler.Start(); err != nil {
		a.state = StateFailed
		a.mu.Unlock()
		return err
	}
	a.scheduler = scheduler
	a.state = StateRunning
	a.startedAt = time.Now()
	a.mu.Unlock()
	a.reportUp(StateRunning)

	a.logger.Info().
		Dur("heartbeat_interval", a.opts.HeartbeatInterval).
		Dur("poll_interval", a.opts.PollInterval).
		Int("slots", scheduler.Slots()).
		Msg("Agent running")
	return nil
}

// Stop halts the periodic tasks, drains in-flight work and cancels what is
// left, returning within the shutdown grace. Stop is idempotent; before
// Start it moves the agent straight to Stopped.
func (a *Agent) Stop() {
	a.mu.Lock()
	switch a.state {
	case StateUninitialized:
		a.state = StateStopped
		a.mu.Unlock()
		a.reportUp(StateStopped)
		return
	case StateRegistering:
		a.stopRequested = true
		a.mu.Unlock()
		return
	case StateRunning:
		a.state = StateDraining
	default:
		a.mu.Unlock()
		return
	}
	scheduler := a.scheduler
	a.mu.Unlock()
	a.reportUp(StateDraining)

	drain, settle := splitGrace(a.opts.ShutdownGrace)
	a.logger.Info().Dur("grace", a.opts.ShutdownGrace).Msg("Stopping agent")
	if drained := scheduler.Stop(drain); !drained {
		a.logger.Warn().Dur("drain", drain).Msg("In-flight work did not finish in time and was cancelled")
		if !scheduler.WaitTimeout(settle) {
			a.logger.Error().Dur("waited", settle).Msg("Cancelled work is still running, giving up on it")
		}
	}

	a.setState(StateStopped)
	a.logger.Info().Msg("Agent stopped")
}

// Status is a point-in-time view of the agent for the status server
type Status struct {
	State             string     `json:"state"`
	ContainerID       string     `json:"containerId"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	LastHeartbeat     *time.Time `json:"lastHeartbeat,omitempty"`
	LastPoll          *time.Time `json:"lastPoll,omitempty"`
	HeartbeatFailures int64      `json:"heartbeatFailures"`
	PollFailures      int64      `json:"pollFailures"`
	CommandsSucceeded int64      `json:"commandsSucceeded"`
	CommandsFailed    int64      `json:"commandsFailed"`
	SubmitFailures    int64      `json:"submitFailures"`
}

// Status returns the current status snapshot
func (a *Agent) Status() Status {
	a.mu.Lock()
	state := a.state
	startedAt := a.startedAt
	a.mu.Unlock()

	st := Status{
		State:             state.String(),
		ContainerID:       a.opts.Identity.ContainerID,
		LastHeartbeat:     unixNanoTime(a.stats.lastHeartbeat.Load()),
		LastPoll:          unixNanoTime(a.stats.lastPoll.Load()),
		HeartbeatFailures: a.stats.heartbeatFailures.Load(),
		PollFailures:      a.stats.pollFailures.Load(),
		CommandsSucceeded: a.stats.commandsSucceeded.Load(),
		CommandsFailed:    a.stats.commandsFailed.Load(),
		SubmitFailures:    a.stats.submitFailures.Load(),
	}
	if !startedAt.IsZero() {
		st.StartedAt = &startedAt
	}
	return st
}

func unixNanoTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
