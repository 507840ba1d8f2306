package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"diag-agent/app/utils"
)

// MinWorkerCount is the smallest scheduler pool: heartbeat, poll and one in-flight action
const MinWorkerCount = 3

// Config holds diagnostic agent configuration
type Config struct {
	TeamName      string `yaml:"team_name" validate:"required"`
	AppName       string `yaml:"app_name" validate:"required"`
	PodName       string `yaml:"pod_name" validate:"required"`
	ContainerName string `yaml:"container_name" validate:"required"`

	CoordinatorURL string `yaml:"coordinator_url" validate:"required,url"`
	APIKey         string `yaml:"api_key"`

	DumpDirectory       string `yaml:"dump_directory" validate:"required"`
	ArtifactCompression string `yaml:"artifact_compression" validate:"oneof=none zstd lz4"`
	HeapDumpCommand     string `yaml:"heap_dump_command"`

	HeartbeatInterval   time.Duration `yaml:"-" validate:"gt=0"`
	PollInterval        time.Duration `yaml:"-" validate:"gt=0"`
	ShutdownGracePeriod time.Duration `yaml:"-" validate:"gte=0"`
	ControlTimeout      time.Duration `yaml:"-" validate:"gte=0"`
	UploadTimeout       time.Duration `yaml:"-" validate:"gt=0"`
	JournalRetention    time.Duration `yaml:"-" validate:"gt=0"`
	WorkerCount         int           `yaml:"worker_count" validate:"gte=3"`

	JournalPath string `yaml:"journal_path"`
	StatusAddr  string `yaml:"status_addr" validate:"omitempty,hostname_port"`

	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"oneof=json console"`

	// Raw duration strings for YAML unmarshaling
	HeartbeatIntervalRaw   string `yaml:"heartbeat_interval"`
	PollIntervalRaw        string `yaml:"poll_interval"`
	ShutdownGracePeriodRaw string `yaml:"shutdown_grace_period"`
	ControlTimeoutRaw      string `yaml:"control_timeout"`
	UploadTimeoutRaw       string `yaml:"upload_timeout"`
	JournalRetentionRaw    string `yaml:"journal_retention"`
}

// JournalDisabled reports whether the local command journal is turned off
func (c *Config) JournalDisabled() bool {
	return strings.EqualFold(strings.TrimSpace(c.JournalPath), "off")
}

// DefaultConfig returns a configuration that lets the agent start with no input
func DefaultConfig() *Config {
	return &Config{
		TeamName:               "unknown",
		AppName:                "unknown",
		PodName:                defaultPodName(),
		ContainerName:          "main",
		CoordinatorURL:         "http://localhost:8080",
		DumpDirectory:          "/tmp/dumps",
		ArtifactCompression:    "none",
		HeartbeatIntervalRaw:   "30s",
		PollIntervalRaw:        "5s",
		ShutdownGracePeriodRaw: "30s",
		ControlTimeoutRaw:      "0s",
		UploadTimeoutRaw:       "5m",
		JournalRetentionRaw:    "24h",
		WorkerCount:            MinWorkerCount,
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file and the environment.
// Environment values win over the file; ${VAR} references inside the file are expanded.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data), getenv)
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg, getenv)

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}

	if cfg.WorkerCount < MinWorkerCount {
		cfg.WorkerCount = MinWorkerCount
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(cfg.DumpDirectory, "journal.db")
	}
	cfg.CoordinatorURL = strings.TrimRight(strings.TrimSpace(cfg.CoordinatorURL), "/")

	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnvWithDotEnv layers a .env file under the process environment.
// A missing file is not an error.
func EnvWithDotEnv(path string, getenv func(string) string) (func(string) string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if path == "" {
		return getenv, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return getenv, nil
		}
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&cfg.TeamName, "TEAM_NAME")
	set(&cfg.AppName, "APP_NAME")
	set(&cfg.PodName, "POD_NAME")
	set(&cfg.ContainerName, "CONTAINER_NAME")
	set(&cfg.CoordinatorURL, "CENTRAL_API_URL")
	set(&cfg.APIKey, "MONITORING_API_KEY")
	set(&cfg.DumpDirectory, "DUMP_DIRECTORY")
	set(&cfg.ArtifactCompression, "ARTIFACT_COMPRESSION")
	set(&cfg.HeapDumpCommand, "HEAP_DUMP_COMMAND")
	set(&cfg.HeartbeatIntervalRaw, "HEARTBEAT_INTERVAL")
	set(&cfg.PollIntervalRaw, "POLL_INTERVAL")
	set(&cfg.ShutdownGracePeriodRaw, "SHUTDOWN_GRACE_PERIOD")
	set(&cfg.ControlTimeoutRaw, "CONTROL_TIMEOUT")
	set(&cfg.UploadTimeoutRaw, "UPLOAD_TIMEOUT")
	set(&cfg.JournalRetentionRaw, "JOURNAL_RETENTION")
	set(&cfg.JournalPath, "JOURNAL_PATH")
	set(&cfg.StatusAddr, "STATUS_ADDR")
	set(&cfg.LogLevel, "LOG_LEVEL")
	set(&cfg.LogFormat, "LOG_FORMAT")

	if wc := getenv("WORKER_COUNT"); wc != "" {
		if v, err := strconv.Atoi(wc); err == nil && v > 0 {
			cfg.WorkerCount = v
		}
	}

	cfg.ArtifactCompression = strings.ToLower(cfg.ArtifactCompression)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
}

func (c *Config) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"heartbeat_interval", c.HeartbeatIntervalRaw, &c.HeartbeatInterval},
		{"poll_interval", c.PollIntervalRaw, &c.PollInterval},
		{"shutdown_grace_period", c.ShutdownGracePeriodRaw, &c.ShutdownGracePeriod},
		{"control_timeout", c.ControlTimeoutRaw, &c.ControlTimeout},
		{"upload_timeout", c.UploadTimeoutRaw, &c.UploadTimeout},
		{"journal_retention", c.JournalRetentionRaw, &c.JournalRetention},
	}

	for _, f := range fields {
		d, err := parseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with values from getenv; unset variables expand to ""
func expandEnvVars(s string, getenv func(string) string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// parseDuration accepts Go duration strings or a bare number of seconds
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func defaultPodName() string {
	if hostname, err := os.Hostname(); err == nil && strings.TrimSpace(hostname) != "" {
		return hostname
	}
	return "unknown"
}
