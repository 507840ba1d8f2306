package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"diag-agent/app"
	"diag-agent/app/clients"
	"diag-agent/app/identity"
	"diag-agent/app/services"
)

var (
	configPath  string
	envFile     string
	checkHealth bool
)

var rootCmd = &cobra.Command{
	Use:           "diag-agent",
	Short:         "Diagnostic agent for containerized Go services",
	Long:          `diag-agent registers a container with the monitoring coordinator, reports heartbeats and executes diagnostic commands (heap dump, goroutine dump, GC, system info) delivered by polling.`,
	Version:       services.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register and run the agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context())
	},
}

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Print the system information the agent would report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSystemInfo(cmd.Context(), cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "diag-agent %s\n", services.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file layered under the process environment")
	sysinfoCmd.Flags().BoolVar(&checkHealth, "check", false, "also probe the coordinator health endpoint")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sysinfoCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*app.Config, error) {
	getenv, err := app.EnvWithDotEnv(envFile, os.Getenv)
	if err != nil {
		return nil, err
	}
	cfg, err := app.LoadConfig(configPath, getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runAgent(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agentApp, err := app.Bootstrap(cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer agentApp.Close()

	return agentApp.Run(ctx)
}

func printSystemInfo(ctx context.Context, out io.Writer) error {
	info := identity.NewSystemProbe().Probe(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return err
	}

	if !checkHealth {
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := clients.NewCoordinatorClient(clients.NewHTTPClient(cfg.CoordinatorURL, cfg.APIKey), clients.DefaultTimeouts())
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("coordinator %s is unhealthy: %w", cfg.CoordinatorURL, err)
	}
	fmt.Fprintf(out, "coordinator %s is healthy\n", cfg.CoordinatorURL)
	return nil
}
