// Package container runs install and build commands inside a Docker sandbox
// that has the workspace mounted.
package container

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/agentdash/internal/execution"
)

const (
	// Container configuration.
	containerUser   = "1000"
	mountPath       = "/workspace"
	stopTimeoutSecs = 10

	// Resource limits.
	memoryLimitBytes = 1024 * 1024 * 1024 // 1GB, installs are memory hungry
	cpuQuota         = 100000              // 1 CPU
	pidsLimit        = 512

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond
)

// Manager defines the interface for the sandbox container.
type Manager interface {
	// EnsureContainer ensures the named sandbox exists and is running.
	EnsureContainer(ctx context.Context, name string) (string, error)

	// StopContainer stops and removes a container.
	StopContainer(ctx context.Context, containerID string) error

	// IsRunning checks if a container is currently running.
	IsRunning(ctx context.Context, containerID string) (bool, error)

	// Exec runs cmd in the container and streams its output.
	Exec(ctx context.Context, containerID string, cmd []string) iter.Seq2[execution.Event, error]
}

// Options configures a DockerManager.
type Options struct {
	Image        string
	WorkspaceDir string // host directory bind-mounted at /workspace
	Runtime      string // "" = default (runc), "runsc" = gVisor
}

// DockerManager implements Manager using the Docker API.
type DockerManager struct {
	cli  *client.Client
	opts Options
}

// NewDockerManager creates a new Docker-backed container manager.
func NewDockerManager(opts Options) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	runtime := opts.Runtime
	if runtime == "" {
		runtime = "default"
	}
	slog.Info("Docker client initialized", "runtime", runtime, "image", opts.Image)
	return &DockerManager{cli: cli, opts: opts}, nil
}

// Close releases the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// EnsureContainer ensures the named sandbox exists and is running.
func (m *DockerManager) EnsureContainer(ctx context.Context, name string) (string, error) {
	inspect, err := m.cli.ContainerInspect(ctx, name)
	if err == nil {
		if inspect.State.Running {
			return inspect.ID, nil
		}
		slog.Info("Restarting stopped sandbox", "container_id", inspect.ID, "name", name)
		if err := m.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("restart container %s: %w", inspect.ID, err)
		}
		return inspect.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}

	slog.Info("Creating sandbox container", "name", name, "image", m.opts.Image)

	config := &container.Config{
		Image:      m.opts.Image,
		User:       containerUser,
		WorkingDir: mountPath,
		Cmd:        []string{"sleep", "infinity"},
	}

	hostConfig := &container.HostConfig{
		Runtime: m.opts.Runtime,
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: m.opts.WorkspaceDir,
			Target: mountPath,
		}},
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = m.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
		if createErr == nil {
			break
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return "", fmt.Errorf("create container: %w", createErr)
		}

		// A concurrent create can win the name; reuse it if it is there.
		slog.Warn("Container name conflict during create, retrying",
			"container_name", name,
			"attempt", i+1,
			"error", createErr,
		)
		if inspect, inspectErr := m.cli.ContainerInspect(ctx, name); inspectErr == nil && inspect.State.Running {
			return inspect.ID, nil
		}

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
			slog.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	slog.Info("Sandbox created and started", "container_id", resp.ID, "name", name)
	return resp.ID, nil
}

// StopContainer stops and removes a container.
// It is idempotent and handles concurrent calls gracefully.
func (m *DockerManager) StopContainer(ctx context.Context, containerID string) error {
	slog.Info("Stopping container", "container_id", containerID)

	if _, err := m.cli.ContainerInspect(ctx, containerID); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	timeout := stopTimeoutSecs
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already stopped/removed", "container_id", containerID)
		} else {
			slog.Debug("Container stop returned error, continuing to remove", "container_id", containerID, "error", err)
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return nil
		}
		if ctx.Err() != nil {
			slog.Debug("Context canceled during remove, container may still be removed", "container_id", containerID, "error", err)
			return nil
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}

	slog.Info("Container stopped and removed", "container_id", containerID)
	return nil
}

// IsRunning checks if a container is currently running.
func (m *DockerManager) IsRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	return inspect.State.Running, nil
}

// Exec runs cmd without a TTY and demultiplexes stdout and stderr into
// separate line events, ending with the exec's exit code.
func (m *DockerManager) Exec(ctx context.Context, containerID string, cmd []string) iter.Seq2[execution.Event, error] {
	return func(yield func(execution.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		resp, err := m.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
			AttachStdout: true,
			AttachStderr: true,
			Cmd:          cmd,
			User:         containerUser,
			WorkingDir:   mountPath,
		})
		if err != nil {
			yield(execution.Event{}, fmt.Errorf("create exec in container %s: %w", containerID, err))
			return
		}

		attachResp, err := m.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{})
		if err != nil {
			yield(execution.Event{}, fmt.Errorf("attach to exec %s: %w", resp.ID, err))
			return
		}
		defer attachResp.Close()

		stdoutR, stdoutW := io.Pipe()
		stderrR, stderrW := io.Pipe()
		lines := make(chan execution.Event)

		var g errgroup.Group
		g.Go(func() error {
			_, err := stdcopy.StdCopy(stdoutW, stderrW, attachResp.Reader)
			stdoutW.CloseWithError(err)
			stderrW.CloseWithError(err)
			return err
		})
		g.Go(func() error { return execution.ScanLines(ctx, stdoutR, execution.EventStdout, lines) })
		g.Go(func() error { return execution.ScanLines(ctx, stderrR, execution.EventStderr, lines) })

		readErr := make(chan error, 1)
		go func() {
			readErr <- g.Wait()
			close(lines)
		}()

		stopped := false
		for ev := range lines {
			if stopped {
				continue
			}
			if !yield(ev, nil) {
				stopped = true
				cancel()
				attachResp.Close()
			}
		}
		if err := <-readErr; err != nil && !stopped && !errors.Is(err, bufio.ErrTooLong) {
			yield(execution.Event{}, fmt.Errorf("read exec output: %w", err))
			return
		}
		if stopped {
			return
		}

		inspect, err := m.cli.ContainerExecInspect(ctx, resp.ID)
		if err != nil {
			yield(execution.Event{}, fmt.Errorf("inspect exec %s: %w", resp.ID, err))
			return
		}
		yield(execution.Exit(inspect.ExitCode), nil)
	}
}

func ptr[T any](v T) *T {
	return &v
}
