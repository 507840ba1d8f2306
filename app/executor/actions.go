package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"diag-agent/app/artifacts"
	"diag-agent/app/domains"
	"diag-agent/app/identity"
	"diag-agent/app/logging"
)

// DefaultDumpTimeout bounds an external heap dump command
const DefaultDumpTimeout = 10 * time.Minute

// Options configure the built-in diagnostic actions
type Options struct {
	ContainerID     string
	DumpDirectory   string
	HeapDumpCommand string
	DumpTimeout     time.Duration
	GCSettle        time.Duration
	Transport       artifacts.Transport
	Probe           *identity.SystemProbe
	Logger          zerolog.Logger
}

// Actions implements HEAP_DUMP, THREAD_DUMP, GC_RUN and SYSTEM_INFO
type Actions struct {
	containerID     string
	dumpDirectory   string
	heapDumpCommand string
	gcSettle        time.Duration
	transport       artifacts.Transport
	probe           *identity.SystemProbe
	executor        *Executor
	now             func() time.Time
	pid             int
	logger          zerolog.Logger
}

// NewActions creates the action set
func NewActions(opts Options) *Actions {
	if opts.DumpTimeout <= 0 {
		opts.DumpTimeout = DefaultDumpTimeout
	}
	if opts.GCSettle <= 0 {
		opts.GCSettle = time.Second
	}
	if opts.Probe == nil {
		opts.Probe = identity.NewSystemProbe()
	}

	return &Actions{
		containerID:     opts.ContainerID,
		dumpDirectory:   opts.DumpDirectory,
		heapDumpCommand: opts.HeapDumpCommand,
		gcSettle:        opts.GCSettle,
		transport:       opts.Transport,
		probe:           opts.Probe,
		executor:        NewExecutor(opts.DumpTimeout),
		now:             time.Now,
		pid:             os.Getpid(),
		logger:          logging.Component(opts.Logger, "actions"),
	}
}

// NewDefaultDispatcher returns a dispatcher wired with every built-in action
func NewDefaultDispatcher(opts Options) *Dispatcher {
	a := NewActions(opts)
	d := NewDispatcher(opts.ContainerID, opts.Logger)
	a.Register(d)
	return d
}

// Register installs the actions on d
func (a *Actions) Register(d *Dispatcher) {
	d.Handle(domains.CommandHeapDump, a.HeapDump)
	d.Handle(domains.CommandThreadDump, a.ThreadDump)
	d.Handle(domains.CommandGCRun, a.RunGC)
	d.Handle(domains.CommandSystemInfo, a.SystemInfo)
}

func (a *Actions) artifactName(prefix, ext string) string {
	return fmt.Sprintf("%s_%s_%d%s", prefix, a.containerID, a.now().UnixMilli(), ext)
}

func (a *Actions) ensureDumpDirectory() error {
	if err := os.MkdirAll(a.dumpDirectory, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	return nil
}

// writeArtifact creates fileName in the dump directory and fills it with write
func (a *Actions) writeArtifact(fileName, typeTag string, write func(f *os.File) error) (domains.Artifact, error) {
	if err := a.ensureDumpDirectory(); err != nil {
		return domains.Artifact{}, err
	}

	path := filepath.Join(a.dumpDirectory, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return domains.Artifact{}, fmt.Errorf("failed to create %s: %w", fileName, err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return domains.Artifact{}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return domains.Artifact{}, fmt.Errorf("failed to close %s: %w", fileName, err)
	}

	return statArtifact(path, fileName, typeTag)
}

func statArtifact(path, fileName, typeTag string) (domains.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domains.Artifact{}, fmt.Errorf("artifact %s missing: %w", fileName, err)
	}
	return domains.Artifact{Path: path, FileName: fileName, TypeTag: typeTag, Size: info.Size()}, nil
}

// ship uploads the artifact, records the receipt on the result and removes
// the local copy. On upload failure the local file is kept.
func (a *Actions) ship(ctx context.Context, artifact domains.Artifact, result *domains.CommandResult) error {
	if a.transport == nil {
		return fmt.Errorf("no artifact transport configured")
	}

	receipt, err := a.transport.Upload(ctx, artifact)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", artifact.Path).Msg("Artifact upload failed, keeping local file")
		return err
	}

	result.AddProperty("fileId", receipt.FileID)
	result.AddProperty("fileName", artifact.FileName)
	result.AddProperty("fileSize", artifact.Size)
	if receipt.Compression != "" {
		result.AddProperty("compression", receipt.Compression)
		result.AddProperty("uploadedSize", receipt.FileSize)
	}

	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		a.logger.Warn().Err(err).Str("path", artifact.Path).Msg("Failed to remove uploaded artifact")
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}
