package deps

import (
	"errors"
	"fmt"

	"github.com/ashureev/agentdash/internal/domain"
)

var (
	// ErrNoPendingInstall is returned by Resolve outside pending_install_confirmation.
	ErrNoPendingInstall = errors.New("no dependency install is pending")
	// ErrInvalidTransition is returned for moves outside the transition table.
	ErrInvalidTransition = errors.New("invalid execution state transition")
)

// Gate tracks ExecutionState for one generated artifact. It is not safe for
// concurrent use; the owner serializes access.
type Gate struct {
	state    domain.ExecutionState
	request  *domain.DependencyInstallRequest
	errMsg   string
	answered bool
}

// NewGate returns a gate in the idle state.
func NewGate() *Gate {
	return &Gate{state: domain.ExecIdle}
}

// State returns the current execution state.
func (g *Gate) State() domain.ExecutionState { return g.state }

// Err returns the error message recorded by Fail.
func (g *Gate) Err() string { return g.errMsg }

// Request returns a copy of the pending install request, or nil.
func (g *Gate) Request() *domain.DependencyInstallRequest {
	if g.request == nil {
		return nil
	}
	req := &domain.DependencyInstallRequest{
		PendingPackages: append([]string(nil), g.request.PendingPackages...),
	}
	if g.request.Confirmed != nil {
		v := *g.request.Confirmed
		req.Confirmed = &v
	}
	return req
}

// Reset returns the gate to idle for a new session.
func (g *Gate) Reset() {
	*g = Gate{state: domain.ExecIdle}
}

// Begin starts the pipeline for a freshly written artifact. A non-empty
// pending set parks the gate in pending_install_confirmation; otherwise the
// pipeline goes straight to building.
func (g *Gate) Begin(pending []string) (domain.ExecutionState, error) {
	if len(pending) == 0 {
		return g.state, g.transition(domain.ExecBuilding)
	}
	if err := g.transition(domain.ExecPendingInstallConfirmation); err != nil {
		return g.state, err
	}
	g.request = &domain.DependencyInstallRequest{PendingPackages: append([]string(nil), pending...)}
	return g.state, nil
}

// Resolve records the user's answer. confirm moves to installing, decline
// skips straight to building.
func (g *Gate) Resolve(confirm bool) (domain.ExecutionState, error) {
	if g.state != domain.ExecPendingInstallConfirmation || g.answered {
		return g.state, ErrNoPendingInstall
	}
	next := domain.ExecBuilding
	if confirm {
		next = domain.ExecInstalling
	}
	if err := g.transition(next); err != nil {
		return g.state, err
	}
	g.answered = true
	g.request.Confirmed = &confirm
	return g.state, nil
}

// Installed reports completion of the install step.
func (g *Gate) Installed() error {
	return g.transition(domain.ExecBuilding)
}

// Built reports a successful build.
func (g *Gate) Built() error {
	return g.transition(domain.ExecReady)
}

// Fail moves the gate to error with msg.
func (g *Gate) Fail(msg string) error {
	if err := g.transition(domain.ExecError); err != nil {
		return err
	}
	g.errMsg = msg
	return nil
}

func (g *Gate) transition(next domain.ExecutionState) error {
	if next == domain.ExecInstalling && !(g.state == domain.ExecPendingInstallConfirmation && !g.answered) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.state, next)
	}
	if !g.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.state, next)
	}
	g.state = next
	return nil
}
