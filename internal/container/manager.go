// Package container runs the Lean checker inside a Docker sandbox.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	// Container configuration.
	defaultImage    = "lean-repl:latest"
	defaultName     = "sagredo-checker"
	containerUser   = "1000"
	defaultWorkDir  = "/home/lean/project"
	stopTimeoutSecs = 10

	// Resource limits.
	memoryLimitBytes = 4 * 1024 * 1024 * 1024 // 4GB, Mathlib imports are heavy
	cpuQuota         = 200000                 // 2 CPUs
	pidsLimit        = 256

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond
)

// Config describes the checker container.
type Config struct {
	Image string
	Name  string
	// WorkDir is the Lean project inside the image.
	WorkDir string
	// Runtime: "" = default (runc), "runsc" = gVisor.
	Runtime string
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = defaultImage
	}
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.WorkDir == "" {
		c.WorkDir = defaultWorkDir
	}
	return c
}

// Manager defines the interface for managing the checker container.
type Manager interface {
	// EnsureContainer ensures the checker container exists and is running.
	EnsureContainer(ctx context.Context) (string, error)

	// StopContainer stops and removes a container.
	StopContainer(ctx context.Context, containerID string) error

	// StartExec runs cmd inside the container with stdin and stdout attached.
	StartExec(ctx context.Context, containerID string, cmd []string) (*Exec, error)
}

// Exec is a running command inside the container.
type Exec struct {
	ID     string
	Stdin  io.Writer
	Stdout io.Reader

	closeFn func() error
}

// Close closes stdin and tears down the attached stream.
func (e *Exec) Close() error {
	return e.closeFn()
}

// DockerManager implements Manager using the Docker API.
type DockerManager struct {
	cli    *client.Client
	cfg    Config
	logger *slog.Logger
}

// NewDockerManager creates a new Docker-backed container manager.
func NewDockerManager(cfg Config, logger *slog.Logger) (*DockerManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	cfg = cfg.withDefaults()
	runtime := cfg.Runtime
	if runtime == "" {
		runtime = "default"
	}
	logger.Info("Docker client initialized", "runtime", runtime, "image", cfg.Image)
	return &DockerManager{cli: cli, cfg: cfg, logger: logger}, nil
}

// EnsureContainer ensures the checker container exists and is running.
// The container idles on "sleep infinity"; each checker session is an exec.
func (m *DockerManager) EnsureContainer(ctx context.Context) (string, error) {
	inspect, err := m.cli.ContainerInspect(ctx, m.cfg.Name)
	if err == nil {
		if inspect.State.Running {
			m.logger.Debug("Checker container already running", "container_id", inspect.ID)
			return inspect.ID, nil
		}
		m.logger.Info("Restarting stopped checker container", "container_id", inspect.ID)
		if err := m.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("restart container %s: %w", inspect.ID, err)
		}
		return inspect.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("inspect container %s: %w", m.cfg.Name, err)
	}

	m.logger.Info("Creating checker container", "image", m.cfg.Image, "name", m.cfg.Name)

	config := &container.Config{
		Image:      m.cfg.Image,
		User:       containerUser,
		WorkingDir: m.cfg.WorkDir,
		Cmd:        []string{"sleep", "infinity"},
	}

	hostConfig := &container.HostConfig{
		Runtime:     m.cfg.Runtime,
		NetworkMode: container.NetworkMode("none"),
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = m.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, m.cfg.Name)
		if createErr == nil {
			break
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return "", fmt.Errorf("create container: %w", createErr)
		}

		// Another prover may have created it first.
		if inspect, inspectErr := m.cli.ContainerInspect(ctx, m.cfg.Name); inspectErr == nil && inspect.State.Running {
			return inspect.ID, nil
		}
		m.logger.Warn("Container name conflict during create, retrying",
			"container_name", m.cfg.Name,
			"attempt", i+1,
			"error", createErr,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("create container after retries: %w", createErr)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			m.logger.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	m.logger.Info("Checker container created and started", "container_id", resp.ID)
	return resp.ID, nil
}

// StopContainer stops and removes a container.
// It is idempotent and handles concurrent calls gracefully.
func (m *DockerManager) StopContainer(ctx context.Context, containerID string) error {
	m.logger.Info("Stopping container", "container_id", containerID)

	_, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			m.logger.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	timeout := stopTimeoutSecs
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			m.logger.Debug("Container already stopped/removed", "container_id", containerID)
		} else {
			m.logger.Debug("Container stop returned error, continuing to remove", "container_id", containerID, "error", err)
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		if strings.Contains(err.Error(), "is already in progress") {
			m.logger.Debug("Container removal already in progress", "container_id", containerID)
			return nil
		}
		if ctx.Err() != nil {
			m.logger.Debug("Context canceled during remove, container may still be removed", "container_id", containerID, "error", err)
			return nil
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}

	m.logger.Info("Container stopped and removed", "container_id", containerID)
	return nil
}

// StartExec runs cmd without a TTY so stdout stays a clean byte stream.
// The multiplexed attach stream is split with stdcopy; stderr goes to the debug log.
func (m *DockerManager) StartExec(ctx context.Context, containerID string, cmd []string) (*Exec, error) {
	execConfig := container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
		User:         containerUser,
		WorkingDir:   m.cfg.WorkDir,
	}

	resp, err := m.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("create exec in container %s: %w", containerID, err)
	}

	attachResp, err := m.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach to exec %s: %w", resp.ID, err)
	}

	stdoutR, stdoutW := io.Pipe()
	stderr := &logWriter{logger: m.logger, execID: resp.ID}
	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderr, attachResp.Reader)
		if err == nil {
			err = io.EOF
		}
		stdoutW.CloseWithError(err)
	}()

	m.logger.Info("Exec started", "exec_id", resp.ID, "container_id", containerID, "cmd", strings.Join(cmd, " "))
	return &Exec{
		ID:     resp.ID,
		Stdin:  attachResp.Conn,
		Stdout: stdoutR,
		closeFn: func() error {
			err := attachResp.CloseWrite()
			attachResp.Close()
			_ = stdoutR.Close()
			return err
		},
	}, nil
}

type logWriter struct {
	logger *slog.Logger
	execID string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.logger.Debug("Checker stderr", "exec_id", w.execID, "line", line)
		}
	}
	return len(p), nil
}

func ptr[T any](v T) *T {
	return &v
}
