package identity

import (
	"context"
	"os"
	"runtime"
	"time"

	gohost "github.com/shirou/gopsutil/v4/host"
	gomem "github.com/shirou/gopsutil/v4/mem"
	goprocess "github.com/shirou/gopsutil/v4/process"
)

// System call wrappers for testing
var (
	hostInfo      = gohost.InfoWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	processRSS    = func(ctx context.Context, pid int32) (uint64, error) {
		p, err := goprocess.NewProcessWithContext(ctx, pid)
		if err != nil {
			return 0, err
		}
		info, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return info.RSS, nil
	}
)

// SystemInfo is a point-in-time view of the runtime and its host
type SystemInfo struct {
	AvailableProcessors   int     `json:"availableProcessors"`
	GOMAXPROCS            int     `json:"gomaxprocs"`
	FreeMemory            int64   `json:"freeMemory"`
	TotalMemory           int64   `json:"totalMemory"`
	MaxMemory             int64   `json:"maxMemory"`
	UsedMemory            int64   `json:"usedMemory"`
	NumGoroutine          int     `json:"numGoroutine"`
	GoVersion             string  `json:"goVersion"`
	OSName                string  `json:"osName"`
	OSVersion             string  `json:"osVersion"`
	KernelVersion         string  `json:"kernelVersion"`
	Platform              string  `json:"platform"`
	ProcessRSS            uint64  `json:"processRSS"`
	HostMemoryTotal       uint64  `json:"hostMemoryTotal"`
	HostMemoryUsedPercent float64 `json:"hostMemoryUsedPercent"`
}

// Properties flattens the snapshot into command result properties
func (s SystemInfo) Properties() map[string]interface{} {
	return map[string]interface{}{
		"availableProcessors":   s.AvailableProcessors,
		"gomaxprocs":            s.GOMAXPROCS,
		"freeMemory":            s.FreeMemory,
		"totalMemory":           s.TotalMemory,
		"maxMemory":             s.MaxMemory,
		"usedMemory":            s.UsedMemory,
		"numGoroutine":          s.NumGoroutine,
		"goVersion":             s.GoVersion,
		"osName":                s.OSName,
		"osVersion":             s.OSVersion,
		"kernelVersion":         s.KernelVersion,
		"platform":              s.Platform,
		"processRSS":            s.ProcessRSS,
		"hostMemoryTotal":       s.HostMemoryTotal,
		"hostMemoryUsedPercent": s.HostMemoryUsedPercent,
	}
}

// SystemProbe probes runtime and host information
type SystemProbe struct{}

// NewSystemProbe creates a new system probe
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{}
}

// Probe collects a snapshot. Runtime fields are always present; host fields
// are left zero when gopsutil cannot read them.
func (p *SystemProbe) Probe(ctx context.Context) SystemInfo {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	info := SystemInfo{
		AvailableProcessors: runtime.NumCPU(),
		GOMAXPROCS:          runtime.GOMAXPROCS(0),
		TotalMemory:         int64(ms.HeapSys),
		UsedMemory:          int64(ms.HeapAlloc),
		FreeMemory:          int64(ms.HeapSys) - int64(ms.HeapAlloc),
		MaxMemory:           MaxMemory(),
		NumGoroutine:        runtime.NumGoroutine(),
		GoVersion:           runtime.Version(),
		OSName:              runtime.GOOS,
		Platform:            runtime.GOOS + "/" + runtime.GOARCH,
	}

	if h, err := hostInfo(probeCtx); err == nil && h != nil {
		info.OSVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		if h.Platform != "" {
			info.Platform = h.Platform + "/" + runtime.GOARCH
		}
	}

	if vm, err := virtualMemory(probeCtx); err == nil && vm != nil {
		info.HostMemoryTotal = vm.Total
		info.HostMemoryUsedPercent = vm.UsedPercent
	}

	if rss, err := processRSS(probeCtx, int32(os.Getpid())); err == nil {
		info.ProcessRSS = rss
	}

	return info
}
