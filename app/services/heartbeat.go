package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"diag-agent/app/clients"
)

// heartbeatTick reports liveness. Failures are counted and returned to the
// scheduler's failure boundary; the next tick simply tries again.
func (a *Agent) heartbeatTick(ctx context.Context) error {
	if err := a.opts.Channel.Heartbeat(ctx, a.opts.Identity.ContainerID); err != nil {
		a.stats.heartbeatFailures.Add(1)
		if clients.IsStatus(err, http.StatusNotFound) {
			return fmt.Errorf("heartbeat: coordinator does not know this agent: %w", err)
		}
		return fmt.Errorf("heartbeat: %w", err)
	}

	a.stats.lastHeartbeat.Store(time.Now().UnixNano())
	a.logger.Debug().Msg("Heartbeat sent")
	return nil
}
