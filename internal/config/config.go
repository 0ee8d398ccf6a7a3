// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Checker runtimes.
const (
	RuntimeProcess = "process"
	RuntimeDocker  = "docker"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	APIToken    string
	Archive     ArchiveConfig
	Oracle      OracleConfig
	Checker     CheckerConfig
	Prover      ProverConfig
	AttemptLog  AttemptLogConfig
}

// ArchiveConfig controls the SQLite attempt archive.
type ArchiveConfig struct {
	Enabled   bool
	DBPath    string
	Retention time.Duration
}

// OracleConfig configures the completion service client.
type OracleConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float64
	TopP              float64
	MaxTokens         int
	Timeout           time.Duration
	MaxRetries        int
	RetryInitial      time.Duration
	RetryMax          time.Duration
	RequestsPerMinute int
}

// CheckerConfig configures how the Lean REPL is launched.
type CheckerConfig struct {
	Runtime          string
	ReplPath         string
	ProjectDir       string
	Image            string
	ContainerRuntime string // Docker runtime: "" = default (runc), "runsc" = gVisor
	Timeout          time.Duration
	// StopOnExit removes the checker container on shutdown (docker runtime).
	StopOnExit bool
}

// ProverConfig bounds each proof attempt.
type ProverConfig struct {
	MaxSteps    int
	Concurrency int
}

// AttemptLogConfig controls NDJSON attempt logging.
type AttemptLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("ATTEMPT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		APIToken:    getEnv("API_TOKEN", ""),
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("ARCHIVE_ENABLED", true),
			DBPath:    getEnv("DB_PATH", "./data/attempts.db"),
			Retention: getEnvDuration("ARCHIVE_RETENTION", 30*24*time.Hour),
		},
		Oracle: OracleConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:             getEnv("ORACLE_MODEL", "gpt-4"),
			Temperature:       getEnvFloat("ORACLE_TEMPERATURE", 0.4),
			TopP:              getEnvFloat("ORACLE_TOP_P", 0.95),
			MaxTokens:         getEnvInt("ORACLE_MAX_TOKENS", 2048),
			Timeout:           getEnvDuration("ORACLE_TIMEOUT", 10*time.Minute),
			MaxRetries:        getEnvInt("ORACLE_MAX_RETRIES", 5),
			RetryInitial:      getEnvDuration("ORACLE_RETRY_INITIAL", time.Second),
			RetryMax:          getEnvDuration("ORACLE_RETRY_MAX", 60*time.Second),
			RequestsPerMinute: getEnvInt("ORACLE_REQUESTS_PER_MINUTE", 0),
		},
		Checker: CheckerConfig{
			Runtime:          strings.ToLower(getEnv("CHECKER_RUNTIME", RuntimeProcess)),
			ReplPath:         getEnv("PATH_TO_LEAN_REPL", ""),
			ProjectDir:       getEnv("LEAN_PROJECT_DIR", ""),
			Image:            getEnv("CHECKER_IMAGE", "lean-repl:latest"),
			ContainerRuntime: getEnv("CONTAINER_RUNTIME", ""),
			Timeout:          getEnvDuration("CHECKER_TIMEOUT", 2*time.Minute),
			StopOnExit:       getEnvBool("CHECKER_STOP_ON_EXIT", false),
		},
		Prover: ProverConfig{
			MaxSteps:    getEnvInt("PROVER_MAX_STEPS", 20),
			Concurrency: getEnvInt("PROVER_CONCURRENCY", 2),
		},
		AttemptLog: AttemptLogConfig{
			Enabled:   getEnvBool("ATTEMPT_LOG_ENABLED", true),
			Dir:       getEnv("ATTEMPT_LOG_DIR", "./data/logs/attempts"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Archive.Enabled && c.Archive.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when the archive is enabled")
	}
	if c.Archive.Enabled && c.Archive.Retention <= 0 {
		return fmt.Errorf("ARCHIVE_RETENTION must be > 0")
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("ORACLE_TEMPERATURE must be between 0 and 2")
	}
	if c.Oracle.TopP <= 0 || c.Oracle.TopP > 1 {
		return fmt.Errorf("ORACLE_TOP_P must be in (0, 1]")
	}
	if c.Oracle.MaxTokens <= 0 {
		return fmt.Errorf("ORACLE_MAX_TOKENS must be > 0")
	}
	if c.Oracle.MaxRetries < 0 {
		return fmt.Errorf("ORACLE_MAX_RETRIES must be >= 0")
	}
	switch c.Checker.Runtime {
	case RuntimeProcess, RuntimeDocker:
	default:
		return fmt.Errorf("CHECKER_RUNTIME must be %q or %q, got %q", RuntimeProcess, RuntimeDocker, c.Checker.Runtime)
	}
	if c.Checker.Timeout <= 0 {
		return fmt.Errorf("CHECKER_TIMEOUT must be > 0")
	}
	if c.Prover.MaxSteps <= 0 {
		return fmt.Errorf("PROVER_MAX_STEPS must be > 0")
	}
	if c.Prover.Concurrency <= 0 {
		return fmt.Errorf("PROVER_CONCURRENCY must be > 0")
	}
	if c.AttemptLog.Enabled && c.AttemptLog.Dir == "" {
		return fmt.Errorf("ATTEMPT_LOG_DIR cannot be empty")
	}
	return nil
}

// RequireOracle checks the settings needed to call the completion service.
func (c *Config) RequireOracle() error {
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// RequireChecker checks the settings needed to launch the REPL.
func (c *Config) RequireChecker() error {
	if c.Checker.Runtime == RuntimeProcess && c.Checker.ReplPath == "" {
		return fmt.Errorf("PATH_TO_LEAN_REPL is required for the process checker runtime")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
