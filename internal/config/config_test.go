package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "CHECKER_RUNTIME", "ORACLE_MODEL", "PROVER_MAX_STEPS", "ARCHIVE_RETENTION"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "8080")
	t.Setenv("CHECKER_RUNTIME", "process")
	t.Setenv("ORACLE_MODEL", "gpt-4")
	t.Setenv("PROVER_MAX_STEPS", "20")
	t.Setenv("ARCHIVE_RETENTION", "720h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Oracle.Temperature != 0.4 || cfg.Oracle.TopP != 0.95 || cfg.Oracle.MaxTokens != 2048 {
		t.Errorf("Unexpected oracle defaults: %+v", cfg.Oracle)
	}
	if cfg.Archive.Retention != 720*time.Hour {
		t.Errorf("Unexpected retention %v", cfg.Archive.Retention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ORACLE_TEMPERATURE", "0.1")
	t.Setenv("ORACLE_TIMEOUT", "45")
	t.Setenv("CHECKER_TIMEOUT", "90s")
	t.Setenv("CHECKER_RUNTIME", "Docker")
	t.Setenv("PATH_TO_LEAN_REPL", "/opt/repl/.lake/build/bin/repl")
	t.Setenv("ATTEMPT_LOG_ENABLED", "off")
	t.Setenv("CHECKER_STOP_ON_EXIT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Oracle.Temperature != 0.1 {
		t.Errorf("Expected temperature 0.1, got %v", cfg.Oracle.Temperature)
	}
	if cfg.Oracle.Timeout != 45*time.Second {
		t.Errorf("Expected bare seconds to parse, got %v", cfg.Oracle.Timeout)
	}
	if cfg.Checker.Timeout != 90*time.Second {
		t.Errorf("Expected 90s, got %v", cfg.Checker.Timeout)
	}
	if cfg.Checker.Runtime != RuntimeDocker {
		t.Errorf("Expected docker runtime, got %q", cfg.Checker.Runtime)
	}
	if cfg.AttemptLog.Enabled {
		t.Error("Expected attempt log disabled")
	}
	if !cfg.Checker.StopOnExit {
		t.Error("Expected checker container to stop on exit")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad runtime", map[string]string{"CHECKER_RUNTIME": "wasm"}, "CHECKER_RUNTIME"},
		{"zero steps", map[string]string{"PROVER_MAX_STEPS": "0"}, "PROVER_MAX_STEPS"},
		{"bad top_p", map[string]string{"ORACLE_TOP_P": "1.5"}, "ORACLE_TOP_P"},
		{"empty port", map[string]string{"PORT": ""}, "PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestRequireSettings(t *testing.T) {
	cfg := &Config{Checker: CheckerConfig{Runtime: RuntimeProcess}}
	if err := cfg.RequireOracle(); err == nil {
		t.Error("Expected missing API key error")
	}
	if err := cfg.RequireChecker(); err == nil {
		t.Error("Expected missing REPL path error")
	}
	cfg.Checker.Runtime = RuntimeDocker
	if err := cfg.RequireChecker(); err != nil {
		t.Errorf("Docker runtime needs no local path, got %v", err)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG_ON", "yes")
	t.Setenv("FLAG_BAD", "maybe")
	if !getEnvBool("FLAG_ON", false) {
		t.Error("Expected yes to be true")
	}
	if !getEnvBool("FLAG_BAD", true) {
		t.Error("Expected fallback on unparsable value")
	}
}
