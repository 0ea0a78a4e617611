package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/ashureev/agentdash/internal/domain"
)

const defaultCacheSize = 256

var _ Repository = (*SQLiteStore)(nil)

// Options configures a SQLiteStore.
type Options struct {
	// WorkspaceDir, when set, receives a copy of every written file so the
	// install and build commands see the current workspace.
	WorkspaceDir string
	CacheSize    int
	Logger       *slog.Logger
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	workspace string
	cache     *lru.Cache[string, domain.File]
	logger    *slog.Logger
	writeMu   sync.Mutex // serializes writes to prevent SQLITE_BUSY
	now       func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, domain.File](size)
	if err != nil {
		return nil, fmt.Errorf("create file cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := &SQLiteStore{db: db, workspace: opts.WorkspaceDir, cache: cache, logger: logger, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_updated ON chats(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListFiles returns every file ordered by path.
func (s *SQLiteStore) ListFiles(ctx context.Context) ([]domain.File, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, content, updated_at FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []domain.File
	for rows.Next() {
		var f domain.File
		var updatedAt int64
		if err := rows.Scan(&f.Path, &f.Content, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		f.UpdatedAt = time.UnixMilli(updatedAt)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// GetFile returns one file, serving repeated reads from the LRU cache.
func (s *SQLiteStore) GetFile(ctx context.Context, p string) (*domain.File, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	if f, ok := s.cache.Get(p); ok {
		return &f, nil
	}

	var f domain.File
	var updatedAt int64
	err = s.db.QueryRowContext(ctx, `SELECT path, content, updated_at FROM files WHERE path = ?`, p).
		Scan(&f.Path, &f.Content, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file row: %w", err)
	}
	f.UpdatedAt = time.UnixMilli(updatedAt)
	s.cache.Add(p, f)
	return &f, nil
}

// PutFile creates or replaces a file and mirrors it into the workspace dir.
func (s *SQLiteStore) PutFile(ctx context.Context, p, content string) (*domain.File, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f := domain.File{Path: p, Content: content, UpdatedAt: s.now().Truncate(time.Millisecond)}
	query := `
	INSERT INTO files (path, content, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		content = excluded.content,
		updated_at = excluded.updated_at`
	err = withBusyRetry(ctx, "put_file", func() error {
		_, err := s.db.ExecContext(ctx, query, f.Path, f.Content, f.UpdatedAt.UnixMilli())
		return err
	})
	if err != nil {
		s.cache.Remove(p)
		return nil, fmt.Errorf("upsert file %s: %w", p, err)
	}
	s.cache.Add(p, f)

	// The row is committed, so a failed mirror does not fail the write.
	if err := s.mirror(p, content); err != nil {
		s.logger.Warn("Failed to mirror file to workspace", "path", p, "error", err)
	}
	return &f, nil
}

func (s *SQLiteStore) mirror(p, content string) error {
	if s.workspace == "" {
		return nil
	}
	dst := filepath.Join(s.workspace, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create workspace dir for %s: %w", p, err)
	}
	if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
		return fmt.Errorf("mirror %s to workspace: %w", p, err)
	}
	return nil
}

// CreateChat stores a new transcript under a random UUID.
func (s *SQLiteStore) CreateChat(ctx context.Context, title string, messages []domain.ChatMessage) (*domain.Chat, error) {
	raw, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().Truncate(time.Millisecond)
	chat := &domain.Chat{ID: uuid.NewString(), Title: title, UpdatedAt: now}
	err = withBusyRetry(ctx, "create_chat", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO chats (id, title, messages_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			chat.ID, chat.Title, raw, now.UnixMilli(), now.UnixMilli())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

// UpdateChat replaces the title and/or messages of an existing chat.
func (s *SQLiteStore) UpdateChat(ctx context.Context, id string, title *string, messages []domain.ChatMessage) (*domain.Chat, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.getChat(ctx, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		current.Title = *title
	}
	if messages != nil {
		current.Messages = messages
	}
	raw, err := encodeMessages(current.Messages)
	if err != nil {
		return nil, err
	}

	current.UpdatedAt = s.now().Truncate(time.Millisecond)
	err = withBusyRetry(ctx, "update_chat", func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE chats SET title = ?, messages_json = ?, updated_at = ? WHERE id = ?`,
			current.Title, raw, current.UpdatedAt.UnixMilli(), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update chat %s: %w", id, err)
	}
	return &domain.Chat{ID: current.ID, Title: current.Title, UpdatedAt: current.UpdatedAt}, nil
}

// GetChat returns a transcript with its messages.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	return s.getChat(ctx, id)
}

func (s *SQLiteStore) getChat(ctx context.Context, id string) (*domain.Chat, error) {
	var chat domain.Chat
	var raw string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, title, messages_json, updated_at FROM chats WHERE id = ?`, id).
		Scan(&chat.ID, &chat.Title, &raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat row: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &chat.Messages); err != nil {
		return nil, fmt.Errorf("decode chat %s messages: %w", id, err)
	}
	chat.UpdatedAt = time.UnixMilli(updatedAt)
	return &chat, nil
}

func encodeMessages(messages []domain.ChatMessage) (string, error) {
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return string(raw), nil
}
