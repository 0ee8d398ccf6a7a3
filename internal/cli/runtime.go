package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/sagredo/internal/app"
	"github.com/ashureev/sagredo/internal/attemptlog"
	"github.com/ashureev/sagredo/internal/config"
	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/runner"
	"github.com/ashureev/sagredo/internal/store"
)

const starterCloseTimeout = 30 * time.Second

// runtime holds what the proving commands share. close releases it.
type runtime struct {
	cfg    *config.Config
	runner *runner.Runner
	close  func() error
}

type runnerOverrides struct {
	maxSteps    int
	concurrency int
	noArchive   bool
}

func newRuntime(o runnerOverrides, observers ...prover.Observer) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.maxSteps > 0 {
		cfg.Prover.MaxSteps = o.maxSteps
	}
	if o.concurrency > 0 {
		cfg.Prover.Concurrency = o.concurrency
	}
	logger := slog.Default()

	starter, err := app.NewStarter(cfg, logger)
	if err != nil {
		return nil, err
	}
	oracleClient, err := app.NewOracle(cfg, logger)
	if err != nil {
		return nil, err
	}

	closers := []func() error{func() error {
		ctx, cancel := context.WithTimeout(context.Background(), starterCloseTimeout)
		defer cancel()
		return app.CloseStarter(ctx, starter)
	}}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	runCfg := runner.Config{
		Starter:     starter,
		Oracle:      oracleClient,
		Concurrency: cfg.Prover.Concurrency,
		Logger:      logger,
	}

	if cfg.Archive.Enabled && !o.noArchive {
		repo, err := store.NewSQLite(cfg.Archive.DBPath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, repo.Close)
		runCfg.Repo = repo
	}

	obs := prover.Observers(observers)
	if cfg.AttemptLog.Enabled {
		alog, err := attemptlog.New(attemptlog.Config{
			Enabled:   true,
			Dir:       cfg.AttemptLog.Dir,
			QueueSize: cfg.AttemptLog.QueueSize,
		}, logger)
		if err != nil {
			_ = closeAll()
			return nil, err
		}
		closers = append(closers, alog.Close)
		obs = append(obs, alog)
		runCfg.Transcripts = alog
	}

	runCfg.Prover = app.ProverConfig(cfg)
	runCfg.Prover.Observer = obs

	return &runtime{cfg: cfg, runner: runner.New(runCfg), close: closeAll}, nil
}
