package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"diag-agent/app/domains"
	"diag-agent/app/logging"
)

// HandlerFunc executes one command and fills in result properties.
// A returned error marks the result as failed.
type HandlerFunc func(ctx context.Context, cmd domains.Command, result *domains.CommandResult) error

// Dispatcher routes commands to handlers by type
type Dispatcher struct {
	containerID string
	handlers    map[domains.CommandType]HandlerFunc
	now         func() time.Time
	logger      zerolog.Logger
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(containerID string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		containerID: containerID,
		handlers:    make(map[domains.CommandType]HandlerFunc),
		now:         time.Now,
		logger:      logging.Component(logger, "dispatcher"),
	}
}

// Handle registers the handler for a command type, replacing any previous one
func (d *Dispatcher) Handle(t domains.CommandType, h HandlerFunc) {
	d.handlers[t] = h
}

// Supports reports whether a handler is registered for t
func (d *Dispatcher) Supports(t domains.CommandType) bool {
	_, ok := d.handlers[t]
	return ok
}

// Dispatch runs the command and always returns a completed result.
// Handler errors and panics are converted into failed results.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd domains.Command) (result *domains.CommandResult) {
	result = domains.NewCommandResult(cmd, d.containerID, d.now())

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Int64("command_id", cmd.ID).
				Str("type", string(cmd.Type)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Command handler panicked")
			result.Fail(fmt.Sprintf("panic: %v", r))
		}
		result.EndTime = d.now()
		if result.EndTime.Before(result.StartTime) {
			result.EndTime = result.StartTime
		}
	}()

	handler, ok := d.handlers[cmd.Type]
	if !ok {
		result.Fail(fmt.Sprintf("Unknown command type: %s", cmd.Type))
		return result
	}

	if err := handler(ctx, cmd, result); err != nil {
		d.logger.Error().Err(err).
			Int64("command_id", cmd.ID).
			Str("type", string(cmd.Type)).
			Msg("Command failed")
		result.Fail(err.Error())
		return result
	}

	if !result.Success && result.ErrorMessage == "" {
		result.Succeed(fmt.Sprintf("%s completed", cmd.Type))
	}
	return result
}
