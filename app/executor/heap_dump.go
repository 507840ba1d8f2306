package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strconv"

	"diag-agent/app/domains"
	"diag-agent/app/utils"
)

const (
	heapFormatPprof = "pprof"
	heapFormatFull  = "full"
)

type heapDumpParams struct {
	Format string `json:"format" validate:"omitempty,oneof=pprof full"`
	GC     *bool  `json:"gc"`
}

// HeapDump writes a heap snapshot and uploads it
func (a *Actions) HeapDump(ctx context.Context, cmd domains.Command, result *domains.CommandResult) error {
	var params heapDumpParams
	if err := utils.DecodeParameters(cmd.Parameters, &params); err != nil {
		return err
	}

	var (
		artifact domains.Artifact
		err      error
	)
	switch {
	case a.heapDumpCommand != "":
		artifact, err = a.externalHeapDump(ctx)
	case params.Format == heapFormatFull:
		artifact, err = a.writeArtifact(a.artifactName("heapdump", ".heapdump"), domains.ArtifactHeapDump, func(f *os.File) error {
			debug.WriteHeapDump(f.Fd())
			return nil
		})
	default:
		runGC := params.GC == nil || *params.GC
		artifact, err = a.writeArtifact(a.artifactName("heapdump", ".pprof"), domains.ArtifactHeapDump, func(f *os.File) error {
			if runGC {
				runtime.GC()
			}
			if err := pprof.WriteHeapProfile(f); err != nil {
				return fmt.Errorf("failed to write heap profile: %w", err)
			}
			return nil
		})
	}
	if err != nil {
		return err
	}

	if err := a.ship(ctx, artifact, result); err != nil {
		return err
	}

	format := params.Format
	if format == "" {
		format = heapFormatPprof
	}
	if a.heapDumpCommand != "" {
		format = "external"
	}
	result.AddProperty("format", format)
	result.Succeed("Heap dump created successfully")
	return nil
}

// externalHeapDump runs the configured dump command with {pid} and {file}
// substituted; {file} is shell-quoted. A nonzero exit or a missing output
// file is a failure.
func (a *Actions) externalHeapDump(ctx context.Context) (domains.Artifact, error) {
	if err := a.ensureDumpDirectory(); err != nil {
		return domains.Artifact{}, err
	}

	fileName := a.artifactName("heapdump", ".dump")
	path := filepath.Join(a.dumpDirectory, fileName)
	shellCmd := ExpandPlaceholders(a.heapDumpCommand, map[string]string{
		"pid":  strconv.Itoa(a.pid),
		"file": ShellQuote(path),
	})

	a.logger.Info().Str("command", shellCmd).Msg("Running external heap dump command")

	res, err := a.executor.ExecuteShell(ctx, shellCmd, 0)
	if err != nil {
		return domains.Artifact{}, err
	}
	if res.Error != nil {
		os.Remove(path)
		return domains.Artifact{}, fmt.Errorf("failed to create heap dump: %w", res.Error)
	}
	if res.ExitCode != 0 {
		os.Remove(path)
		return domains.Artifact{}, fmt.Errorf("failed to create heap dump: command exited with code %d: %s", res.ExitCode, res.Output)
	}

	artifact, err := statArtifact(path, fileName, domains.ArtifactHeapDump)
	if err != nil {
		return domains.Artifact{}, fmt.Errorf("failed to create heap dump: %w", err)
	}
	return artifact, nil
}
