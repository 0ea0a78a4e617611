package container

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/ashureev/agentdash/internal/execution"
)

// SandboxRunner implements execution.Executor on top of a Manager.
type SandboxRunner struct {
	mgr     Manager
	name    string
	allowed map[string]struct{}
	logger  *slog.Logger

	mu          sync.Mutex
	containerID string
}

// NewSandboxRunner returns a runner that executes allow-listed commands in the
// named sandbox container, creating it on first use.
func NewSandboxRunner(mgr Manager, name string, allowed []string, logger *slog.Logger) *SandboxRunner {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return &SandboxRunner{mgr: mgr, name: name, allowed: set, logger: logger}
}

// Run executes cmd in the sandbox.
func (r *SandboxRunner) Run(ctx context.Context, cmd execution.Command) iter.Seq2[execution.Event, error] {
	return func(yield func(execution.Event, error) bool) {
		if _, ok := r.allowed[cmd.Command]; !ok {
			yield(execution.Event{Type: execution.EventError, Message: fmt.Sprintf("%s: %s", execution.ErrNotAllowed, cmd.Command)}, nil)
			return
		}

		id, err := r.container(ctx)
		if err != nil {
			yield(execution.Event{Type: execution.EventError, Message: err.Error()}, nil)
			return
		}
		if !yield(execution.Event{Type: execution.EventStart, Text: cmd.String()}, nil) {
			return
		}

		argv := append([]string{cmd.Command}, cmd.Args...)
		for ev, err := range r.mgr.Exec(ctx, id, argv) {
			if err != nil {
				r.forget(id)
				yield(execution.Event{Type: execution.EventError, Message: err.Error()}, nil)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// container returns the cached sandbox id, checking it is still running.
func (r *SandboxRunner) container(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.containerID != "" {
		running, err := r.mgr.IsRunning(ctx, r.containerID)
		if err == nil && running {
			return r.containerID, nil
		}
		r.logger.Info("Sandbox no longer running, recreating", "container_id", r.containerID)
	}
	id, err := r.mgr.EnsureContainer(ctx, r.name)
	if err != nil {
		return "", fmt.Errorf("ensure sandbox %s: %w", r.name, err)
	}
	r.containerID = id
	return id, nil
}

func (r *SandboxRunner) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.containerID == id {
		r.containerID = ""
	}
}

// Shutdown stops the sandbox if one was started.
func (r *SandboxRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	id := r.containerID
	r.containerID = ""
	r.mu.Unlock()
	if id == "" {
		return nil
	}
	return r.mgr.StopContainer(ctx, id)
}
