// agentdash - Agent Generation Dashboard Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/api"
	"github.com/ashureev/agentdash/internal/client"
	"github.com/ashureev/agentdash/internal/config"
	"github.com/ashureev/agentdash/internal/container"
	"github.com/ashureev/agentdash/internal/dashboard"
	"github.com/ashureev/agentdash/internal/deps"
	"github.com/ashureev/agentdash/internal/execution"
	"github.com/ashureev/agentdash/internal/identity"
	"github.com/ashureev/agentdash/internal/middleware"
	"github.com/ashureev/agentdash/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const reaperInterval = time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"textgen", cfg.TextGen.Provider, "executor", cfg.Exec.Runtime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("Failed to create database directory", "error", err)
		os.Exit(1)
	}
	repo, err := store.NewSQLite(cfg.DBPath, store.Options{WorkspaceDir: cfg.WorkspaceDir, Logger: logger})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	var files store.FileStore = repo
	if cfg.Remote.FilesURL != "" {
		files = client.NewFiles(cfg.Remote.FilesURL, nil)
		slog.Info("Using remote file store", "url", cfg.Remote.FilesURL)
	}
	var chats store.ChatStore = repo
	if cfg.Remote.ChatsURL != "" {
		chats = client.NewChats(cfg.Remote.ChatsURL, nil)
		slog.Info("Using remote transcript store", "url", cfg.Remote.ChatsURL)
	}

	executor, shutdownExecutor, err := newExecutor(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize command executor", "error", err)
		os.Exit(1)
	}
	defer shutdownExecutor()

	gen, err := agent.New(ctx, agent.Config{
		Provider:       cfg.TextGen.Provider,
		GrpcAddr:       cfg.TextGen.GrpcAddr,
		GeminiAPIKey:   cfg.TextGen.GeminiAPIKey,
		GeminiModel:    cfg.TextGen.GeminiModel,
		RequestTimeout: cfg.Agent.CodeTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize text generation", "error", err, "provider", cfg.TextGen.Provider)
		os.Exit(1)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	gen = agent.WithConversationLog(gen, conversationLogger)
	defer gen.Close()

	// Initialize services.
	known := deps.NewKnown(cfg.KnownPackages...)
	timings := dashboard.Timings{
		AnalyzeDelay:  cfg.Agent.AnalyzeDelay,
		GenerateDelay: cfg.Agent.GenerateDelay,
		ChatDelay:     cfg.Agent.ChatDelay,
		ChatTimeout:   cfg.Agent.ChatTimeout,
		PlanTimeout:   cfg.Agent.PlanTimeout,
		CodeTimeout:   cfg.Agent.CodeTimeout,
	}
	registry := dashboard.NewRegistry(func(userID, sessionID string) *dashboard.Service {
		return dashboard.New(dashboard.Options{
			Generator:      gen,
			Files:          files,
			Executor:       executor,
			Chats:          chats,
			Timings:        timings,
			Known:          known,
			InstallCommand: cfg.Exec.InstallCommand,
			BuildCommand:   cfg.Exec.BuildCommand,
			DiffMode:       cfg.DiffMode,
			UserID:         userID,
			SessionID:      sessionID,
			Logger:         logger,
		})
	})
	defer registry.CloseAll()
	registry.StartReaper(ctx, reaperInterval, cfg.DashboardIdleTTL)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	// Initialize handlers.
	baseHandler := api.NewHandler(files, chats, executor, logger)
	healthHandler := api.NewHealthHandler(repo, cfg.TextGen.Provider, cfg.Exec.Runtime)
	dashboardHandler := dashboard.NewHandler(registry, limiter.Limit)
	wsHandler := dashboard.NewWebSocketHandler(registry, cfg.AllowedOrigins(), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		baseHandler.RegisterRoutes(r)
		dashboardHandler.RegisterRoutes(r)
		r.Get("/ws/dashboard", wsHandler.ServeHTTP)
	})

	// Note: exec and websocket streams require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newExecutor builds the command runner selected by EXEC_RUNTIME, or the
// remote client when REMOTE_EXEC_URL is set.
func newExecutor(cfg *config.Config, logger *slog.Logger) (execution.Executor, func(), error) {
	if cfg.Remote.ExecURL != "" {
		slog.Info("Using remote command execution", "url", cfg.Remote.ExecURL)
		return client.NewExec(cfg.Remote.ExecURL, nil), func() {}, nil
	}

	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		return nil, nil, err
	}
	if cfg.Exec.Runtime != "docker" {
		return execution.NewLocalRunner(cfg.WorkspaceDir, cfg.AllowedCommands(), logger), func() {}, nil
	}

	workspace, err := filepath.Abs(cfg.WorkspaceDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := container.NewDockerManager(container.Options{
		Image:        cfg.Exec.SandboxImage,
		WorkspaceDir: workspace,
		Runtime:      cfg.Exec.ContainerRuntime,
	})
	if err != nil {
		return nil, nil, err
	}
	runner := container.NewSandboxRunner(mgr, cfg.Exec.SandboxContainer, cfg.AllowedCommands(), logger)
	slog.Info("Container manager initialized", "image", cfg.Exec.SandboxImage)

	return runner, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Shutdown(ctx); err != nil {
			slog.Warn("Failed to stop sandbox container", "error", err)
		}
		if err := mgr.Close(); err != nil {
			slog.Warn("Failed to close docker client", "error", err)
		}
	}, nil
}
