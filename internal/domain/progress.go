package domain

import "time"

// Stage is a step of the staged generation narration.
type Stage string

const (
	// StagePlanning is the first stage of every generation session.
	StagePlanning Stage = "planning"
	// StageAnalyzing inspects the workspace.
	StageAnalyzing Stage = "analyzing"
	// StageGenerating waits for and reveals generated code.
	StageGenerating Stage = "generating"
	// StageFinalizing narrates the written artifact.
	StageFinalizing Stage = "finalizing"
	// StageIdle is both the rest state and the terminal state of a session.
	StageIdle Stage = "idle"
)

var stageOrder = map[Stage]int{
	StagePlanning:   0,
	StageAnalyzing:  1,
	StageGenerating: 2,
	StageFinalizing: 3,
	StageIdle:       4,
}

// Next returns the stage that follows s. Idle has no successor.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StagePlanning:
		return StageAnalyzing, true
	case StageAnalyzing:
		return StageGenerating, true
	case StageGenerating:
		return StageFinalizing, true
	case StageFinalizing:
		return StageIdle, true
	default:
		return s, false
	}
}

// Before reports whether s comes strictly before other in session order.
func (s Stage) Before(other Stage) bool {
	a, okA := stageOrder[s]
	b, okB := stageOrder[other]
	return okA && okB && a < b
}

// AgentProgressState is the live state attached to a progress message.
type AgentProgressState struct {
	Stage          Stage    `json:"stage"`
	PlanText       string   `json:"planText"`
	WorkspaceNotes []string `json:"workspaceNotes"`
	FileName       string   `json:"fileName"`
}

// Clone returns a deep copy safe to hand out of the orchestrator lock.
func (p AgentProgressState) Clone() AgentProgressState {
	p.WorkspaceNotes = append([]string(nil), p.WorkspaceNotes...)
	return p
}

// AgentLogEntry is one append-only session log record.
type AgentLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Result    string    `json:"result,omitempty"`
}
