package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"diag-agent/app/artifacts"
	"diag-agent/app/clients"
	"diag-agent/app/domains"
	"diag-agent/app/executor"
	"diag-agent/app/handlers"
	"diag-agent/app/identity"
	"diag-agent/app/logging"
	"diag-agent/app/metrics"
	"diag-agent/app/services"
	"diag-agent/app/storage"
)

const (
	healthCheckTimeout    = 5 * time.Second
	statusShutdownTimeout = 5 * time.Second
)

// App holds the wired diagnostic agent
type App struct {
	Config      *Config
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	Journal     storage.Journal
	Coordinator *clients.CoordinatorClient
	Agent       *services.Agent
	Router      *gin.Engine
}

// Bootstrap builds every component of the agent from cfg. Nothing talks to
// the coordinator until Run is called.
func Bootstrap(cfg *Config, logOutput io.Writer) (*App, error) {
	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "diag-agent",
		Output:    logOutput,
	})

	m := metrics.New()

	var journal storage.Journal = storage.NopJournal{}
	if !cfg.JournalDisabled() {
		store, err := storage.NewStore(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize command journal: %w", err)
		}
		journal = store
	}

	fsStore, err := storage.NewFSStore(cfg.DumpDirectory)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("failed to initialize dump directory: %w", err)
	}

	var previous domains.Identity
	if found, err := fsStore.LoadJSON(services.IdentityFile, &previous); err != nil {
		logger.Warn().Err(err).Msg("Ignoring unreadable identity file")
	} else if found {
		logger.Info().Str("previous_container_id", previous.ContainerID).Msg("Identity from a previous run found, a fresh one will be registered")
	}

	compression, err := artifacts.ParseCompression(cfg.ArtifactCompression)
	if err != nil {
		journal.Close()
		return nil, err
	}

	ident := identity.NewCollector().Collect(context.Background(), identity.Settings{
		TeamName:      cfg.TeamName,
		AppName:       cfg.AppName,
		PodName:       cfg.PodName,
		ContainerName: cfg.ContainerName,
	})

	httpClient := clients.NewHTTPClient(cfg.CoordinatorURL, cfg.APIKey)
	coordinator := clients.NewCoordinatorClient(httpClient,
		clients.DefaultTimeouts().WithControl(cfg.ControlTimeout).WithUpload(cfg.UploadTimeout))

	var transport artifacts.Transport = artifacts.NewHTTPTransport(coordinator, ident.ContainerID)
	if compression != artifacts.CompressionNone {
		transport = artifacts.NewCompressingTransport(transport, compression)
	}

	dispatcher := executor.NewDefaultDispatcher(executor.Options{
		ContainerID:     ident.ContainerID,
		DumpDirectory:   cfg.DumpDirectory,
		HeapDumpCommand: cfg.HeapDumpCommand,
		Transport:       transport,
		Probe:           identity.NewSystemProbe(),
		Logger:          logger,
	})

	agent := services.NewAgent(services.Options{
		Identity:          ident,
		Channel:           coordinator,
		Runner:            dispatcher,
		Journal:           journal,
		IdentityStore:     fsStore,
		Metrics:           m,
		Logger:            logger,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PollInterval:      cfg.PollInterval,
		ShutdownGrace:     cfg.ShutdownGracePeriod,
		JournalRetention:  cfg.JournalRetention,
		WorkerCount:       cfg.WorkerCount,
	})

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		Journal:     journal,
		Coordinator: coordinator,
		Agent:       agent,
	}
	if cfg.StatusAddr != "" {
		app.Router = handlers.NewRouter(handlers.NewStatusHandler(agent, journal), m.Registry)
	}

	return app, nil
}

// Run registers the agent and blocks until ctx is cancelled or SIGINT or
// SIGTERM arrives, then drains the agent. A failed registration is returned.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ident := a.Agent.Identity()
	a.Logger.Info().
		Str("version", services.Version).
		Str("container_id", ident.ContainerID).
		Str("coordinator", a.Config.CoordinatorURL).
		Dur("heartbeat_interval", a.Config.HeartbeatInterval).
		Dur("poll_interval", a.Config.PollInterval).
		Msg("Starting diagnostic agent")

	a.checkCoordinator(ctx)

	if err := a.Agent.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("Shutting down...")
		a.Agent.Stop()
		return nil
	})

	if a.Router != nil {
		server := &http.Server{
			Addr:              a.Config.StatusAddr,
			Handler:           a.Router,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		g.Go(func() error {
			a.Logger.Info().Str("addr", server.Addr).Msg("Status server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.Logger.Warn().Err(err).Msg("Status server shutdown error")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Logger.Info().Msg("Diagnostic agent stopped")
	return nil
}

// Close releases the journal
func (a *App) Close() error {
	return a.Journal.Close()
}

// checkCoordinator logs whether the coordinator answers its health endpoint.
// The result is informational only; registration decides whether to run.
func (a *App) checkCoordinator(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := a.Coordinator.Health(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Coordinator health check failed")
		return
	}
	a.Logger.Info().Msg("Coordinator is healthy")
}
