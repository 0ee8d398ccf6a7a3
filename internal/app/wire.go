// Package app builds the prover's runtime components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/config"
	"github.com/ashureev/sagredo/internal/container"
	"github.com/ashureev/sagredo/internal/oracle"
	"github.com/ashureev/sagredo/internal/prover"
)

// defaultContainerREPL runs the REPL from the Lean project baked into the image.
var defaultContainerREPL = []string{"lake", "exe", "repl"}

// NewStarter returns the checker starter for the configured runtime.
func NewStarter(cfg *config.Config, logger *slog.Logger) (checker.Starter, error) {
	if err := cfg.RequireChecker(); err != nil {
		return nil, err
	}
	switch cfg.Checker.Runtime {
	case config.RuntimeDocker:
		mgr, err := container.NewDockerManager(container.Config{
			Image:   cfg.Checker.Image,
			WorkDir: cfg.Checker.ProjectDir,
			Runtime: cfg.Checker.ContainerRuntime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize container manager: %w", err)
		}
		cmd := defaultContainerREPL
		if cfg.Checker.ReplPath != "" {
			cmd = []string{cfg.Checker.ReplPath}
		}
		return &checker.DockerStarter{
			Manager:     mgr,
			Cmd:         cmd,
			Timeout:     cfg.Checker.Timeout,
			Logger:      logger,
			StopOnClose: cfg.Checker.StopOnExit,
		}, nil
	default:
		return &checker.ProcessStarter{
			Path:    cfg.Checker.ReplPath,
			Dir:     cfg.Checker.ProjectDir,
			Timeout: cfg.Checker.Timeout,
			Logger:  logger,
		}, nil
	}
}

// CloseStarter releases whatever the starter holds beyond its sessions,
// such as the shared checker container.
func CloseStarter(ctx context.Context, s checker.Starter) error {
	if c, ok := s.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

// NewOracle returns an oracle client for the configured completion service.
func NewOracle(cfg *config.Config, logger *slog.Logger) (*oracle.Client, error) {
	if err := cfg.RequireOracle(); err != nil {
		return nil, err
	}
	retry := oracle.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Oracle.MaxRetries
	retry.InitialInterval = cfg.Oracle.RetryInitial
	retry.MaxInterval = cfg.Oracle.RetryMax

	transport := oracle.NewOpenAITransport(cfg.Oracle.BaseURL, cfg.Oracle.APIKey)
	return oracle.New(transport, oracle.Config{
		Retry:             retry,
		RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
		Tokens:            oracle.CL100KCounter(),
		Logger:            logger,
	}), nil
}

// ProverConfig maps configuration onto controller settings. The caller
// attaches observers.
func ProverConfig(cfg *config.Config) prover.Config {
	return prover.Config{
		MaxSteps: cfg.Prover.MaxSteps,
		Options: oracle.Options{
			Model:       cfg.Oracle.Model,
			Temperature: cfg.Oracle.Temperature,
			TopP:        cfg.Oracle.TopP,
			MaxTokens:   cfg.Oracle.MaxTokens,
		},
		OracleTimeout:  cfg.Oracle.Timeout,
		CheckerTimeout: cfg.Checker.Timeout,
	}
}
