// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	DBPath       string
	WorkspaceDir string

	TextGen         TextGenConfig
	Exec            ExecConfig
	Agent           AgentTimings
	Remote          RemoteConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig

	KnownPackages    []string
	DiffMode         string // "greedy" or "minimal"
	DashboardIdleTTL time.Duration
}

// TextGenConfig selects and configures the text-generation provider.
type TextGenConfig struct {
	Provider     string // canned, grpc or gemini
	GrpcAddr     string
	GeminiAPIKey string
	GeminiModel  string
}

// ExecConfig controls where install and build commands run.
type ExecConfig struct {
	Runtime          string // local or docker
	SandboxImage     string
	SandboxContainer string
	ContainerRuntime string // Docker runtime: "" = default (runc), "runsc" = gVisor
	InstallCommand   []string
	BuildCommand     []string
}

// AgentTimings are the staged narration delays and network timeouts.
type AgentTimings struct {
	AnalyzeDelay  time.Duration
	GenerateDelay time.Duration
	ChatDelay     time.Duration
	ChatTimeout   time.Duration
	PlanTimeout   time.Duration
	CodeTimeout   time.Duration
}

// RemoteConfig points the orchestrator at remote collaborators. Empty URLs
// use the in-process implementations.
type RemoteConfig struct {
	FilesURL string
	ExecURL  string
	ChatsURL string
}

// RateLimitConfig throttles prompt submissions per identity.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON logging of generation traffic.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/agentdash.db"),
		WorkspaceDir: getEnv("WORKSPACE_DIR", "./data/workspace"),
		TextGen: TextGenConfig{
			Provider:     getEnv("TEXTGEN_PROVIDER", "canned"),
			GrpcAddr:     getEnv("TEXTGEN_GRPC_ADDR", "localhost:50051"),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Exec: ExecConfig{
			Runtime:          getEnv("EXEC_RUNTIME", "local"),
			SandboxImage:     getEnv("SANDBOX_IMAGE", "node:22-alpine"),
			SandboxContainer: getEnv("SANDBOX_CONTAINER", "agentdash-sandbox"),
			ContainerRuntime: getEnv("CONTAINER_RUNTIME", ""),
			InstallCommand:   getEnvFields("INSTALL_COMMAND", []string{"npm", "install"}),
			BuildCommand:     getEnvFields("BUILD_COMMAND", []string{"npm", "run", "build"}),
		},
		Agent: AgentTimings{
			AnalyzeDelay:  getEnvDuration("AGENT_ANALYZE_DELAY", 650*time.Millisecond),
			GenerateDelay: getEnvDuration("AGENT_GENERATE_DELAY", 1450*time.Millisecond),
			ChatDelay:     getEnvDuration("CHAT_DELAY", 300*time.Millisecond),
			ChatTimeout:   getEnvDuration("CHAT_TIMEOUT", 25*time.Second),
			PlanTimeout:   getEnvDuration("PLAN_TIMEOUT", 30*time.Second),
			CodeTimeout:   getEnvDuration("CODE_TIMEOUT", 90*time.Second),
		},
		Remote: RemoteConfig{
			FilesURL: getEnv("REMOTE_FILES_URL", ""),
			ExecURL:  getEnv("REMOTE_EXEC_URL", ""),
			ChatsURL: getEnv("REMOTE_CHATS_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/generation"),
			QueueSize: getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
		},
		KnownPackages:    getEnvList("KNOWN_PACKAGES", []string{"react", "react-dom", "next", "tailwindcss"}),
		DiffMode:         getEnv("DIFF_MODE", "greedy"),
		DashboardIdleTTL: getEnvDuration("DASHBOARD_IDLE_TTL", 30*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.TextGen.Provider {
	case "canned", "grpc":
	case "gemini":
		if c.TextGen.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when TEXTGEN_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("TEXTGEN_PROVIDER must be canned, grpc or gemini, got %q", c.TextGen.Provider)
	}
	switch c.Exec.Runtime {
	case "local", "docker":
	default:
		return fmt.Errorf("EXEC_RUNTIME must be local or docker, got %q", c.Exec.Runtime)
	}
	if len(c.Exec.InstallCommand) == 0 || len(c.Exec.BuildCommand) == 0 {
		return fmt.Errorf("INSTALL_COMMAND and BUILD_COMMAND cannot be empty")
	}
	if c.DiffMode != "greedy" && c.DiffMode != "minimal" {
		return fmt.Errorf("DIFF_MODE must be greedy or minimal, got %q", c.DiffMode)
	}
	if c.Agent.GenerateDelay < c.Agent.AnalyzeDelay {
		return fmt.Errorf("AGENT_GENERATE_DELAY must not be shorter than AGENT_ANALYZE_DELAY")
	}
	if c.Agent.ChatTimeout <= 0 || c.Agent.PlanTimeout <= 0 || c.Agent.CodeTimeout <= 0 {
		return fmt.Errorf("CHAT_TIMEOUT, PLAN_TIMEOUT and CODE_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return strings.Split(c.FrontendURL, ",")
}

// AllowedCommands returns the binaries the exec endpoint may run.
func (c *Config) AllowedCommands() []string {
	seen := map[string]bool{}
	var out []string
	for _, cmd := range [][]string{c.Exec.InstallCommand, c.Exec.BuildCommand} {
		if !seen[cmd[0]] {
			seen[cmd[0]] = true
			out = append(out, cmd[0])
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvFields splits a command line on whitespace.
func getEnvFields(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.Fields(value)
}
