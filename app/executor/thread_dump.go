package executor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"diag-agent/app/domains"
)

// ThreadDump writes the stacks of all goroutines and uploads them
func (a *Actions) ThreadDump(ctx context.Context, cmd domains.Command, result *domains.CommandResult) error {
	goroutines := runtime.NumGoroutine()

	artifact, err := a.writeArtifact(a.artifactName("threaddump", ".txt"), domains.ArtifactThreadDump, func(f *os.File) error {
		header := fmt.Sprintf("Goroutine Dump - %s\n%s\n\n", a.now().Format(time.RFC3339), strings.Repeat("=", 50))
		if err := writeString(f, header); err != nil {
			return err
		}
		if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
			return fmt.Errorf("failed to write goroutine dump: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := a.ship(ctx, artifact, result); err != nil {
		return err
	}

	result.AddProperty("goroutineCount", goroutines)
	result.Succeed("Thread dump created successfully")
	return nil
}
