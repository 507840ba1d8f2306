package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecutionResult represents command execution result
type ExecutionResult struct {
	ExitCode int
	Output   string
	Error    error
}

// Executor executes shell commands
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new command executor
func NewExecutor(defaultTimeout time.Duration) *Executor {
	return &Executor{
		timeout: defaultTimeout,
	}
}

// Execute executes a command with optional timeout. The combined output is
// captured up to outputTailSize bytes, keeping the most recent bytes.
func (e *Executor) Execute(ctx context.Context, cmd string, args []string, timeout time.Duration) (*ExecutionResult, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output := newTailBuffer(outputTailSize)
	command := exec.CommandContext(execCtx, cmd, args...)
	command.Stdout = output
	command.Stderr = output
	command.WaitDelay = 5 * time.Second

	err := command.Run()
	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) && execCtx.Err() == nil {
			exitCode = exitError.ExitCode()
		} else {
			// Context timeout or other error
			return &ExecutionResult{
				ExitCode: -1,
				Output:   output.String(),
				Error:    fmt.Errorf("execution failed: %w", errors.Join(err, execCtx.Err())),
			}, nil
		}
	}

	return &ExecutionResult{
		ExitCode: exitCode,
		Output:   output.String(),
		Error:    nil,
	}, nil
}

// ExecuteShell executes a shell command (sh -c)
func (e *Executor) ExecuteShell(ctx context.Context, shellCmd string, timeout time.Duration) (*ExecutionResult, error) {
	return e.Execute(ctx, "sh", []string{"-c", shellCmd}, timeout)
}

// ExpandPlaceholders replaces {name} tokens in template with values from vars
func ExpandPlaceholders(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// ShellQuote quotes s as a single sh word
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
