// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/ashureev/agentdash/internal/domain"
)

var (
	// ErrNotFound is returned when a file or chat does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath rejects empty, absolute or escaping workspace paths.
	ErrInvalidPath = errors.New("invalid workspace path")
)

// FileStore persists workspace artifacts.
type FileStore interface {
	// ListFiles returns every file ordered by path.
	ListFiles(ctx context.Context) ([]domain.File, error)

	// GetFile returns one file or ErrNotFound.
	GetFile(ctx context.Context, path string) (*domain.File, error)

	// PutFile creates or replaces a file.
	PutFile(ctx context.Context, path, content string) (*domain.File, error)
}

// ChatStore persists chat transcripts.
type ChatStore interface {
	// CreateChat stores a new transcript and assigns its id.
	CreateChat(ctx context.Context, title string, messages []domain.ChatMessage) (*domain.Chat, error)

	// UpdateChat replaces the title and/or messages. A nil title or nil
	// messages leaves that field unchanged.
	UpdateChat(ctx context.Context, id string, title *string, messages []domain.ChatMessage) (*domain.Chat, error)

	// GetChat returns a transcript with its messages or ErrNotFound.
	GetChat(ctx context.Context, id string) (*domain.Chat, error)
}

// Repository combines file and chat persistence.
type Repository interface {
	FileStore
	ChatStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// CleanPath normalizes a workspace-relative path.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
