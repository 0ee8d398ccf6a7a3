package checker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Starter launches a fresh REPL session.
type Starter interface {
	Start(ctx context.Context) (*Session, error)
}

// stopGrace is how long Close waits for the REPL to exit after stdin closes.
const stopGrace = 5 * time.Second

// ProcessStarter runs the REPL as a local child process.
type ProcessStarter struct {
	// Path to the REPL executable.
	Path string
	Args []string
	// Dir is the Lean project the REPL runs in, so imports resolve.
	Dir     string
	Timeout time.Duration
	Logger  *slog.Logger
}

var _ Starter = (*ProcessStarter)(nil)

// Start spawns the REPL. The process outlives ctx; call Session.Close to stop it.
func (p *ProcessStarter) Start(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.Path == "" {
		return nil, fmt.Errorf("%w: no REPL path configured", ErrCheckerUnavailable)
	}

	cmd := exec.Command(p.Path, p.Args...)
	cmd.Dir = p.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrCheckerUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrCheckerUnavailable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrCheckerUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrCheckerUnavailable, p.Path, err)
	}
	logger.Info("Checker process started", "path", p.Path, "pid", cmd.Process.Pid, "dir", p.Dir)

	go logLines(logger, stderr, "pid", cmd.Process.Pid)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	closeFn := func() error {
		_ = stdin.Close()
		select {
		case err := <-waitErr:
			logger.Info("Checker process exited", "pid", cmd.Process.Pid)
			return ignoreExit(err)
		case <-time.After(stopGrace):
		}
		logger.Warn("Checker process did not exit, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill checker process: %w", err)
		}
		return ignoreExit(<-waitErr)
	}

	return NewSession(stdin, stdout, closeFn, SessionConfig{Timeout: p.Timeout, Logger: logger}), nil
}

// ignoreExit treats a non-zero exit after we closed stdin or killed the
// process as a normal shutdown.
func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func logLines(logger *slog.Logger, r io.Reader, attrs ...any) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("Checker stderr", append(attrs, "line", scanner.Text())...)
	}
}
