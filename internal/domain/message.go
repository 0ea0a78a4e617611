// Package domain contains core domain types for the agent dashboard.
package domain

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks messages typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the agent.
	RoleAssistant Role = "assistant"
)

// MessageKind tells the UI how to render a chat message.
type MessageKind string

const (
	// KindText is a plain text message.
	KindText MessageKind = "text"
	// KindProgress is a live generation message backed by an AgentProgressState.
	KindProgress MessageKind = "progress"
	// KindStatus is a short status line such as "✓ file created".
	KindStatus MessageKind = "status"
	// KindFilePreview carries a full generated file.
	KindFilePreview MessageKind = "file_preview"
)

// ChatMessage is a single entry in the dashboard conversation.
type ChatMessage struct {
	ID       int64       `json:"id"`
	Role     Role        `json:"role"`
	Text     string      `json:"text"`
	Kind     MessageKind `json:"kind"`
	FilePath string      `json:"filePath,omitempty"`
}

// IsTransient reports whether the message should be kept out of persisted transcripts.
func (m ChatMessage) IsTransient() bool {
	return m.Kind == KindProgress
}

// Mode selects how the dashboard routes prompts.
type Mode string

const (
	// ModeAgent classifies each prompt and generates code when asked.
	ModeAgent Mode = "agent"
	// ModeChat treats every prompt as conversation.
	ModeChat Mode = "chat"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAgent || m == ModeChat
}
