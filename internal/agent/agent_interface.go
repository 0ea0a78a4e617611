package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// Generator defines the interface for text generation.
// Implemented by the gRPC, Gemini and canned clients.
type Generator interface {
	// Generate runs one request to completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Close releases resources
	Close()
}

// Ensure the clients implement Generator.
var (
	_ Generator = (*GrpcClient)(nil)
	_ Generator = (*GeminiClient)(nil)
	_ Generator = (*Canned)(nil)
	_ Generator = (*LoggingGenerator)(nil)
)

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case "", ProviderCanned:
		return NewCanned(), nil
	case ProviderGrpc:
		return NewGrpcClient(GrpcClientConfig{Address: cfg.GrpcAddr, RequestTimeout: cfg.RequestTimeout}, logger)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	default:
		return nil, fmt.Errorf("unknown text generation provider %q", cfg.Provider)
	}
}
