package identity

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"diag-agent/app/domains"
	"diag-agent/app/utils"
)

// StatusActive is the status reported on registration
const StatusActive = "active"

// Settings are the operator-supplied naming inputs of an identity
type Settings struct {
	TeamName      string
	AppName       string
	PodName       string
	ContainerName string
}

// Collector builds the agent identity from settings and host probing
type Collector struct {
	now      func() time.Time
	hostIP   func(ctx context.Context) string
	hostname func() (string, error)
	suffix   func() string
}

// NewCollector creates a new identity collector
func NewCollector() *Collector {
	return &Collector{
		now:      time.Now,
		hostIP:   PrimaryIP,
		hostname: os.Hostname,
		suffix:   func() string { return utils.ShortID(8) },
	}
}

// Collect builds an immutable identity. It never fails: fields that cannot
// be probed fall back to "unknown".
func (c *Collector) Collect(ctx context.Context, s Settings) domains.Identity {
	hostname, err := c.hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "unknown"
	}

	return domains.Identity{
		ContainerID:   GenerateID(s, c.now(), c.suffix()),
		TeamName:      s.TeamName,
		AppName:       s.AppName,
		PodName:       s.PodName,
		ContainerName: s.ContainerName,
		HostIP:        c.hostIP(ctx),
		Status:        StatusActive,
		RuntimeInfo: domains.RuntimeInfo{
			GoVersion:           runtime.Version(),
			OS:                  runtime.GOOS,
			Arch:                runtime.GOARCH,
			AvailableProcessors: runtime.NumCPU(),
			MaxMemory:           MaxMemory(),
			PID:                 os.Getpid(),
			Hostname:            hostname,
		},
	}
}

// GenerateID formats team_app_pod_<unix millis>_<suffix>
func GenerateID(s Settings, at time.Time, suffix string) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s", s.TeamName, s.AppName, s.PodName, at.UnixMilli(), suffix)
}

// MaxMemory returns the runtime soft memory limit (math.MaxInt64 when unset)
func MaxMemory() int64 {
	return debug.SetMemoryLimit(-1)
}
