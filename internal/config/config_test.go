package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.AnalyzeDelay != 650*time.Millisecond || cfg.Agent.GenerateDelay != 1450*time.Millisecond {
		t.Fatalf("unexpected agent delays %+v", cfg.Agent)
	}
	if cfg.Agent.ChatTimeout != 25*time.Second || cfg.Agent.PlanTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts %+v", cfg.Agent)
	}
	if !reflect.DeepEqual(cfg.AllowedCommands(), []string{"npm"}) {
		t.Fatalf("AllowedCommands() = %v", cfg.AllowedCommands())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_ANALYZE_DELAY", "10ms")
	t.Setenv("AGENT_GENERATE_DELAY", "20ms")
	t.Setenv("KNOWN_PACKAGES", "react, zod ,")
	t.Setenv("BUILD_COMMAND", "pnpm build")
	t.Setenv("DIFF_MODE", "minimal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.AnalyzeDelay != 10*time.Millisecond || cfg.Agent.GenerateDelay != 20*time.Millisecond {
		t.Fatalf("delays not overridden: %+v", cfg.Agent)
	}
	if !reflect.DeepEqual(cfg.KnownPackages, []string{"react", "zod"}) {
		t.Fatalf("KnownPackages = %v", cfg.KnownPackages)
	}
	if !reflect.DeepEqual(cfg.AllowedCommands(), []string{"npm", "pnpm"}) {
		t.Fatalf("AllowedCommands() = %v", cfg.AllowedCommands())
	}
	if cfg.DiffMode != "minimal" {
		t.Fatalf("DiffMode = %q", cfg.DiffMode)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown provider", map[string]string{"TEXTGEN_PROVIDER": "openai"}, "TEXTGEN_PROVIDER"},
		{"gemini without key", map[string]string{"TEXTGEN_PROVIDER": "gemini"}, "GEMINI_API_KEY"},
		{"bad runtime", map[string]string{"EXEC_RUNTIME": "k8s"}, "EXEC_RUNTIME"},
		{"bad diff mode", map[string]string{"DIFF_MODE": "lcs"}, "DIFF_MODE"},
		{"generate before analyze", map[string]string{"AGENT_ANALYZE_DELAY": "2s", "AGENT_GENERATE_DELAY": "1s"}, "AGENT_GENERATE_DELAY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
