package domain

// ExecutionState tracks the install/build pipeline after a file is written.
type ExecutionState string

const (
	ExecIdle                       ExecutionState = "idle"
	ExecPendingInstallConfirmation ExecutionState = "pending_install_confirmation"
	ExecInstalling                 ExecutionState = "installing"
	ExecBuilding                   ExecutionState = "building"
	ExecReady                      ExecutionState = "ready"
	ExecError                      ExecutionState = "error"
)

// executionTransitions lists the allowed forward moves. Error is reachable
// from every state and is handled separately.
var executionTransitions = map[ExecutionState][]ExecutionState{
	ExecIdle:                       {ExecPendingInstallConfirmation, ExecBuilding},
	ExecPendingInstallConfirmation: {ExecInstalling, ExecBuilding},
	ExecInstalling:                 {ExecBuilding},
	ExecBuilding:                   {ExecReady},
}

// CanTransition reports whether moving from s to next is allowed within a session.
func (s ExecutionState) CanTransition(next ExecutionState) bool {
	if next == ExecError {
		return s != ExecError
	}
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible in this session.
func (s ExecutionState) Terminal() bool {
	return s == ExecReady || s == ExecError
}

// DependencyInstallRequest is the pending confirmation for new packages.
type DependencyInstallRequest struct {
	PendingPackages []string `json:"pendingPackages"`
	// Confirmed stays nil until the user answers.
	Confirmed *bool `json:"confirmed,omitempty"`
}
