package services

import (
	"context"
	"fmt"
)

// IdentityFile is where the registered identity is written for local tooling
const IdentityFile = "agent-identity.json"

// register announces the agent once. A refusal or transport error is fatal.
func (a *Agent) register(ctx context.Context) error {
	identity := a.opts.Identity
	a.logger.Info().
		Str("team", identity.TeamName).
		Str("app", identity.AppName).
		Str("pod", identity.PodName).
		Str("host_ip", identity.HostIP).
		Msg("Registering with coordinator")

	ok, err := a.opts.Channel.Register(ctx, identity)
	if err != nil {
		a.logger.Error().Err(err).Msg("Registration request failed")
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	if !ok {
		a.logger.Error().Msg("Coordinator rejected registration")
		return fmt.Errorf("%w: rejected by coordinator", ErrRegistrationFailed)
	}

	if a.opts.IdentityStore != nil {
		if err := a.opts.IdentityStore.SaveJSON(IdentityFile, identity); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to persist identity file")
		}
	}

	if a.opts.Metrics != nil {
		a.opts.Metrics.AgentInfo.WithLabelValues(Version, identity.ContainerID, identity.TeamName, identity.AppName).Set(1)
	}

	a.logger.Info().Msg("Container registered successfully")
	return nil
}
