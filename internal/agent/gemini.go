package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrInvalidJSON is returned when a code task reply is not the expected object.
var ErrInvalidJSON = errors.New("gemini: invalid JSON from model")

const geminiAttempts = 3

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli    *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient creates a client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultConfig().GeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model, logger: logger}, nil
}

// Close is a no-op; the genai client holds no resources.
func (g *GeminiClient) Close() {}

// Generate renders req into one prompt and asks the model. Code and fix
// tasks request a JSON object {code, requiredPackages}.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	full := renderPrompt(req)
	cfg := &genai.GenerateContentConfig{}
	if req.Task != TaskChat {
		cfg.ResponseMIMEType = "application/json"
	}

	var lastErr error
	for attempt := 0; attempt < geminiAttempts; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
			cfg,
		)
		switch {
		case err != nil:
			lastErr = err
		case len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0:
			lastErr = errEmptyGeneration
		default:
			txt := resp.Candidates[0].Content.Parts[0].Text
			out, err := decodeReply(req.Task, txt)
			if err == nil {
				return out, nil
			}
			lastErr = err
		}
		g.logger.Warn("gemini generate failed", "attempt", attempt+1, "task", req.Task, "error", lastErr)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return nil, lastErr
}

func decodeReply(task Task, txt string) (*Response, error) {
	if task == TaskChat {
		txt = strings.TrimSpace(txt)
		if txt == "" {
			return nil, errEmptyGeneration
		}
		return &Response{Text: txt}, nil
	}
	var out Response
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		// Models sometimes ignore the MIME hint and answer with a fenced block.
		if code := ExtractCode(txt); code != "" {
			return &Response{Code: code}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if out.Code == "" {
		return nil, ErrInvalidJSON
	}
	return &out, nil
}

func renderPrompt(req Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	switch req.Task {
	case TaskCode, TaskFix:
		b.WriteString(`Reply with a JSON object {"code": string, "requiredPackages": [string]} containing the complete file.`)
		b.WriteString("\n")
		if req.TargetFile != "" {
			fmt.Fprintf(&b, "[FILE] %s\n", req.TargetFile)
		}
		if req.Current != "" {
			fmt.Fprintf(&b, "[CURRENT]\n%s\n", req.Current)
		}
		if req.BuildOutput != "" {
			fmt.Fprintf(&b, "[BUILD OUTPUT]\n%s\n", req.BuildOutput)
		}
	}
	if req.TaskContext.LogTail != "" {
		fmt.Fprintf(&b, "[TASK] %s (%s)\n[LOG]\n%s\n", req.TaskContext.Task, req.TaskContext.State, req.TaskContext.LogTail)
	}
	fmt.Fprintf(&b, "[MODE] %s\n[PROMPT]\n%s", req.Mode, req.Prompt)
	return b.String()
}
