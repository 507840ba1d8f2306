package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"diag-agent/app/domains"
)

const (
	pollOutcomeCommand = "command"
	pollOutcomeNone    = "none"
	pollOutcomeError   = "error"
)

// pollTick polls once and, when a command arrives, executes it and submits
// the result within the same tick.
func (a *Agent) pollTick(ctx context.Context) error {
	cmd, err := a.opts.Channel.PollCommand(ctx, a.opts.Identity.ContainerID)
	a.stats.lastPoll.Store(time.Now().UnixNano())
	if err != nil {
		a.stats.pollFailures.Add(1)
		a.countPoll(pollOutcomeError)
		return fmt.Errorf("poll: %w", err)
	}
	if cmd == nil {
		a.countPoll(pollOutcomeNone)
		return nil
	}

	a.countPoll(pollOutcomeCommand)
	a.execute(ctx, *cmd)
	return nil
}

func (a *Agent) countPoll(outcome string) {
	if a.opts.Metrics != nil {
		a.opts.Metrics.PollOutcomes.WithLabelValues(outcome).Inc()
	}
}

// execute runs a delivered command. Exactly one submission is attempted,
// whatever happens during execution.
func (a *Agent) execute(ctx context.Context, cmd domains.Command) {
	logger := a.logger.With().Int64("command_id", cmd.ID).Str("type", string(cmd.Type)).Logger()
	logger.Info().Msg("Received command")

	entryID, err := a.opts.Journal.RecordDelivered(ctx, cmd)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to journal delivered command")
	}

	result := a.dispatch(ctx, cmd)

	if a.opts.Metrics != nil {
		a.opts.Metrics.Commands.WithLabelValues(string(cmd.Type), result.Outcome()).Inc()
		a.opts.Metrics.CommandSeconds.WithLabelValues(string(cmd.Type)).Observe(result.EndTime.Sub(result.StartTime).Seconds())
		if n, ok := uploadedBytes(result); ok {
			a.opts.Metrics.UploadBytes.Add(float64(n))
		}
	}
	if result.Success {
		a.stats.commandsSucceeded.Add(1)
		logger.Info().Dur("took", result.EndTime.Sub(result.StartTime)).Msg("Command completed")
	} else {
		a.stats.commandsFailed.Add(1)
		logger.Error().Str("error", result.ErrorMessage).Msg("Command failed")
	}

	// Submission must happen even when the tick was cancelled during shutdown
	submitCtx := context.WithoutCancel(ctx)

	if entryID != 0 {
		if err := a.opts.Journal.RecordOutcome(submitCtx, entryID, result); err != nil {
			logger.Warn().Err(err).Msg("Failed to journal command outcome")
		}
	}

	if err := a.opts.Channel.SubmitResult(submitCtx, result); err != nil {
		a.stats.submitFailures.Add(1)
		if a.opts.Metrics != nil {
			a.opts.Metrics.SubmitFailures.Inc()
		}
		logger.Error().Err(err).Msg("Failed to send command result")
		return
	}

	if entryID != 0 {
		if err := a.opts.Journal.MarkSubmitted(submitCtx, entryID); err != nil {
			logger.Warn().Err(err).Msg("Failed to journal submission")
		}
	}
}

// uploadedBytes reports the bytes sent to the artifact store, preferring the
// compressed size when the artifact was compressed
func uploadedBytes(result *domains.CommandResult) (int64, bool) {
	if _, ok := result.Properties["fileId"]; !ok {
		return 0, false
	}
	for _, key := range []string{"uploadedSize", "fileSize"} {
		if n, ok := result.Properties[key].(int64); ok {
			return n, true
		}
	}
	return 0, false
}

// dispatch shields the submit path from a runner that panics or returns nil
func (a *Agent) dispatch(ctx context.Context, cmd domains.Command) (result *domains.CommandResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Command runner panicked")
			result = domains.NewCommandResult(cmd, a.opts.Identity.ContainerID, start)
			result.Fail(fmt.Sprintf("panic: %v", r))
		}
		if result == nil {
			result = domains.NewCommandResult(cmd, a.opts.Identity.ContainerID, start)
			result.Fail("command produced no result")
		}
		if result.EndTime.Before(result.StartTime) {
			result.EndTime = result.StartTime
		}
	}()
	return a.opts.Runner.Dispatch(ctx, cmd)
}

// sweepJournal marks commands left running by a previous process as abandoned
func (a *Agent) sweepJournal(ctx context.Context) {
	n, err := a.opts.Journal.SweepAbandoned(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to sweep command journal")
		return
	}
	if n > 0 {
		a.logger.Warn().Int64("count", n).Msg("Commands interrupted by a previous shutdown marked abandoned")
	}
}

func (a *Agent) cleanupTick(ctx context.Context) error {
	n, err := a.opts.Journal.Cleanup(ctx, a.opts.JournalRetention)
	if err != nil {
		return fmt.Errorf("journal cleanup: %w", err)
	}
	if n > 0 {
		a.logger.Debug().Int64("deleted", n).Msg("Journal cleanup")
	}
	return nil
}
