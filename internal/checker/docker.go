package checker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/sagredo/internal/container"
)

// DockerStarter runs the REPL as an exec inside the shared checker container.
type DockerStarter struct {
	Manager container.Manager
	// Cmd is the REPL command line inside the container.
	Cmd     []string
	Timeout time.Duration
	Logger  *slog.Logger
	// StopOnClose removes the container when the starter is closed.
	StopOnClose bool

	mu          sync.Mutex
	containerID string
}

var _ Starter = (*DockerStarter)(nil)

// Start ensures the container is up and attaches a new REPL exec to it.
func (d *DockerStarter) Start(ctx context.Context) (*Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Manager == nil || len(d.Cmd) == 0 {
		return nil, fmt.Errorf("%w: docker checker not configured", ErrCheckerUnavailable)
	}

	containerID, err := d.Manager.EnsureContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckerUnavailable, err)
	}
	d.mu.Lock()
	d.containerID = containerID
	d.mu.Unlock()

	exec, err := d.Manager.StartExec(ctx, containerID, d.Cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckerUnavailable, err)
	}

	logger = logger.With("exec_id", exec.ID)
	return NewSession(exec.Stdin, exec.Stdout, exec.Close, SessionConfig{Timeout: d.Timeout, Logger: logger}), nil
}

// Close stops the checker container if StopOnClose is set and a container
// was brought up by this starter.
func (d *DockerStarter) Close(ctx context.Context) error {
	d.mu.Lock()
	id := d.containerID
	d.containerID = ""
	d.mu.Unlock()
	if !d.StopOnClose || id == "" || d.Manager == nil {
		return nil
	}
	if err := d.Manager.StopContainer(ctx, id); err != nil {
		return fmt.Errorf("stop checker container: %w", err)
	}
	return nil
}
