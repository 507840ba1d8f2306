package services

import (
	"context"

	"diag-agent/app/domains"
)

// Channel is the agent's control link to the coordinator
type Channel interface {
	// Register announces the identity. false means the coordinator refused.
	Register(ctx context.Context, identity domains.Identity) (bool, error)
	Heartbeat(ctx context.Context, agentID string) error
	// PollCommand returns (nil, nil) when no command is pending
	PollCommand(ctx context.Context, agentID string) (*domains.Command, error)
	SubmitResult(ctx context.Context, result *domains.CommandResult) error
}

// CommandRunner executes a command and always returns a completed result
type CommandRunner interface {
	Dispatch(ctx context.Context, cmd domains.Command) *domains.CommandResult
}

// IdentityStore persists the registered identity for local tooling
type IdentityStore interface {
	SaveJSON(filename string, data interface{}) error
}
