// Package agent talks to the text-generation service.
package agent

import (
	"time"

	"github.com/ashureev/agentdash/internal/domain"
)

// Task selects what the text-generation service is asked to produce.
type Task string

const (
	// TaskChat asks for a plain text reply.
	TaskChat Task = "chat"
	// TaskCode asks for a complete source file.
	TaskCode Task = "code"
	// TaskFix asks for a corrected source file given build output.
	TaskFix Task = "fix"
)

// TaskContext is the session state handed to the model with each request.
type TaskContext struct {
	Task    string `json:"task"`
	State   string `json:"state"`
	LogTail string `json:"logTail"`
}

// Request is one call to the text-generation service.
type Request struct {
	Task        Task        `json:"task"`
	Mode        domain.Mode `json:"mode"`
	Prompt      string      `json:"prompt"`
	System      string      `json:"system,omitempty"`
	TargetFile  string      `json:"targetFile,omitempty"`
	Current     string      `json:"current,omitempty"`
	BuildOutput string      `json:"buildOutput,omitempty"`
	TaskContext TaskContext `json:"taskContext"`

	// Routing only, never sent.
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// Response is the service reply. Chat tasks fill Text; code and fix tasks
// fill Code and RequiredPackages.
type Response struct {
	Text             string   `json:"text,omitempty"`
	Code             string   `json:"code,omitempty"`
	RequiredPackages []string `json:"requiredPackages,omitempty"`
}

// Config holds generator settings.
type Config struct {
	Provider       string
	GrpcAddr       string
	GeminiAPIKey   string
	GeminiModel    string
	RequestTimeout time.Duration
	LogDir         string
}

// DefaultConfig returns the offline configuration.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderCanned,
		GeminiModel:    "gemini-2.5-flash",
		RequestTimeout: 30 * time.Second,
	}
}

// Provider names accepted by New.
const (
	ProviderCanned = "canned"
	ProviderGrpc   = "grpc"
	ProviderGemini = "gemini"
)
