package identity

import (
	"context"
	"errors"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"testing"
	"time"

	gohost "github.com/shirou/gopsutil/v4/host"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubInterfaces(t *testing.T, list gonet.InterfaceStatList, err error) {
	t.Helper()
	orig := netInterfaces
	netInterfaces = func(context.Context) (gonet.InterfaceStatList, error) { return list, err }
	t.Cleanup(func() { netInterfaces = orig })
}

func TestPrimaryIP(t *testing.T) {
	tests := []struct {
		name   string
		ifaces gonet.InterfaceStatList
		err    error
		want   string
	}{
		{
			name: "skips loopback and down interfaces",
			ifaces: gonet.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: gonet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
				{Name: "eth1", Flags: []string{"broadcast"}, Addrs: gonet.InterfaceAddrList{{Addr: "10.9.9.9/24"}}},
				{Name: "eth0", Flags: []string{"up", "broadcast"}, Addrs: gonet.InterfaceAddrList{{Addr: "10.1.2.3/16"}}},
			},
			want: "10.1.2.3",
		},
		{
			name: "prefers ipv4 over ipv6",
			ifaces: gonet.InterfaceStatList{
				{Name: "eth0", Flags: []string{"up"}, Addrs: gonet.InterfaceAddrList{
					{Addr: "fe80::1/64"},
					{Addr: "2001:db8::5/64"},
					{Addr: "192.168.1.20/24"},
				}},
			},
			want: "192.168.1.20",
		},
		{
			name: "falls back to global ipv6",
			ifaces: gonet.InterfaceStatList{
				{Name: "eth0", Flags: []string{"up"}, Addrs: gonet.InterfaceAddrList{{Addr: "2001:db8::5/64"}}},
			},
			want: "2001:db8::5",
		},
		{
			name: "nothing usable",
			ifaces: gonet.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: gonet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
			},
			want: UnknownHostIP,
		},
		{
			name: "probe error",
			err:  errors.New("no netlink"),
			want: UnknownHostIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubInterfaces(t, tt.ifaces, tt.err)
			assert.Equal(t, tt.want, PrimaryIP(context.Background()))
		})
	}
}

func TestGenerateID(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	id := GenerateID(Settings{TeamName: "payments", AppName: "ledger", PodName: "ledger-0"}, at, "deadbeef")
	assert.Equal(t, "payments_ledger_ledger-0_1700000000123_deadbeef", id)
}

func TestCollectorCollect(t *testing.T) {
	c := &Collector{
		now:      func() time.Time { return time.UnixMilli(42) },
		hostIP:   func(context.Context) string { return "10.0.0.7" },
		hostname: func() (string, error) { return "", errors.New("no hostname") },
		suffix:   func() string { return "0badc0de" },
	}

	id := c.Collect(context.Background(), Settings{
		TeamName:      "t",
		AppName:       "a",
		PodName:       "p",
		ContainerName: "main",
	})

	assert.Equal(t, "t_a_p_42_0badc0de", id.ContainerID)
	assert.Equal(t, "main", id.ContainerName)
	assert.Equal(t, "10.0.0.7", id.HostIP)
	assert.Equal(t, StatusActive, id.Status)
	assert.Equal(t, "unknown", id.RuntimeInfo.Hostname)
	assert.Equal(t, runtime.Version(), id.RuntimeInfo.GoVersion)
	assert.Equal(t, os.Getpid(), id.RuntimeInfo.PID)
	assert.Equal(t, runtime.NumCPU(), id.RuntimeInfo.AvailableProcessors)
}

func TestNewCollectorProducesDistinctIDs(t *testing.T) {
	stubInterfaces(t, nil, errors.New("offline"))
	c := NewCollector()
	s := Settings{TeamName: "t", AppName: "a", PodName: "p", ContainerName: "main"}

	first := c.Collect(context.Background(), s)
	second := c.Collect(context.Background(), s)
	assert.NotEqual(t, first.ContainerID, second.ContainerID)
	assert.Equal(t, UnknownHostIP, first.HostIP)
}

func TestMaxMemory(t *testing.T) {
	prev := debug.SetMemoryLimit(512 << 20)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
	assert.Equal(t, int64(512<<20), MaxMemory())

	debug.SetMemoryLimit(math.MaxInt64)
	assert.Equal(t, int64(math.MaxInt64), MaxMemory())
}

func TestSystemProbe(t *testing.T) {
	origHost, origMem, origRSS := hostInfo, virtualMemory, processRSS
	t.Cleanup(func() { hostInfo, virtualMemory, processRSS = origHost, origMem, origRSS })

	hostInfo = func(context.Context) (*gohost.InfoStat, error) {
		return &gohost.InfoStat{Platform: "debian", PlatformVersion: "12.4", KernelVersion: "6.1.0"}, nil
	}
	virtualMemory = func(context.Context) (*gomem.VirtualMemoryStat, error) {
		return &gomem.VirtualMemoryStat{Total: 8 << 30, UsedPercent: 41.5}, nil
	}
	processRSS = func(context.Context, int32) (uint64, error) { return 64 << 20, nil }

	info := NewSystemProbe().Probe(context.Background())
	assert.Equal(t, "12.4", info.OSVersion)
	assert.Equal(t, "6.1.0", info.KernelVersion)
	assert.Equal(t, "debian/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, uint64(8<<30), info.HostMemoryTotal)
	assert.Equal(t, 41.5, info.HostMemoryUsedPercent)
	assert.Equal(t, uint64(64<<20), info.ProcessRSS)
	assert.Equal(t, info.TotalMemory-info.UsedMemory, info.FreeMemory)
	assert.Positive(t, info.NumGoroutine)

	props := info.Properties()
	for _, key := range []string{"availableProcessors", "freeMemory", "totalMemory", "maxMemory", "usedMemory", "osName", "osVersion"} {
		require.Contains(t, props, key)
	}
}

func TestSystemProbeHostFailures(t *testing.T) {
	origHost, origMem, origRSS := hostInfo, virtualMemory, processRSS
	t.Cleanup(func() { hostInfo, virtualMemory, processRSS = origHost, origMem, origRSS })

	hostInfo = func(context.Context) (*gohost.InfoStat, error) { return nil, errors.New("denied") }
	virtualMemory = func(context.Context) (*gomem.VirtualMemoryStat, error) { return nil, errors.New("denied") }
	processRSS = func(context.Context, int32) (uint64, error) { return 0, errors.New("denied") }

	info := NewSystemProbe().Probe(context.Background())
	assert.Equal(t, runtime.GOOS, info.OSName)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Zero(t, info.HostMemoryTotal)
	assert.Zero(t, info.ProcessRSS)
}
