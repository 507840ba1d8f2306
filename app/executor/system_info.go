package executor

import (
	"context"

	"diag-agent/app/domains"
)

// SystemInfo reports runtime and host facts as result properties
func (a *Actions) SystemInfo(ctx context.Context, cmd domains.Command, result *domains.CommandResult) error {
	for k, v := range a.probe.Probe(ctx).Properties() {
		result.AddProperty(k, v)
	}
	result.Succeed("System information retrieved")
	return nil
}
