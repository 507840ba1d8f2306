package executor

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"diag-agent/app/domains"
)

func heapInUse() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// RunGC forces a collection and reports the heap delta. memoryFreed may be
// negative when the program allocated during the settle window.
func (a *Actions) RunGC(ctx context.Context, cmd domains.Command, result *domains.CommandResult) error {
	before := heapInUse()

	runtime.GC()
	debug.FreeOSMemory()

	timer := time.NewTimer(a.gcSettle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	after := heapInUse()

	result.AddProperty("memoryBeforeGC", before)
	result.AddProperty("memoryAfterGC", after)
	result.AddProperty("memoryFreed", before-after)
	result.Succeed("Garbage collection completed")
	return nil
}
