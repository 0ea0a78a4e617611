package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogConfig controls the per-session NDJSON generation log.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ConversationLogEvent is one line of the generation log.
type ConversationLogEvent struct {
	Timestamp  time.Time `json:"ts"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Channel    string    `json:"channel"`
	Direction  string    `json:"direction"`
	EventType  string    `json:"event_type"`
	Task       Task      `json:"task,omitempty"`
	ContentRaw string    `json:"content_raw"`
	Content    string    `json:"content"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ConversationLogger records generation traffic.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// fileConversationLogger appends events to <dir>/<user>/<session>.ndjson from
// a single writer goroutine.
type fileConversationLogger struct {
	dir    string
	queue  chan ConversationLogEvent
	logger *slog.Logger
	files  map[string]*os.File

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewConversationLogger returns a file logger, or a no-op logger when disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled || cfg.Dir == "" {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	l := &fileConversationLogger{
		dir:    cfg.Dir,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		logger: logger,
		files:  make(map[string]*os.File),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues event. Events are dropped when the queue is full or closed.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event", "session_id", event.SessionID)
	}
}

// Close flushes queued events and closes every file.
func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.logger.Warn("failed to write conversation log", "error", err, "session_id", event.SessionID)
		}
	}
}

func (l *fileConversationLogger) write(event ConversationLogEvent) error {
	path := filepath.Join(l.dir, safeSegment(event.UserID), safeSegment(event.SessionID)+".ndjson")
	f, ok := l.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		l.files[path] = f
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func safeSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "anonymous"
	}
	return s
}

var (
	ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

func cleanForReadability(raw string) string {
	s := ansiSequence.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// LoggingGenerator records every request and reply of the wrapped generator.
type LoggingGenerator struct {
	next Generator
	log  ConversationLogger
}

// WithConversationLog wraps next. A nil log returns next unchanged.
func WithConversationLog(next Generator, log ConversationLogger) Generator {
	if log == nil {
		return next
	}
	if _, ok := log.(noopConversationLogger); ok {
		return next
	}
	return &LoggingGenerator{next: next, log: log}
}

// Generate forwards req and logs both directions.
func (g *LoggingGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	base := ConversationLogEvent{UserID: req.UserID, SessionID: req.SessionID, Channel: "generate", Task: req.Task}

	out := base
	out.Direction = "outbound"
	out.EventType = "generate_request"
	out.ContentRaw = req.Prompt
	g.log.Log(out)

	start := time.Now()
	resp, err := g.next.Generate(ctx, req)

	in := base
	in.Direction = "inbound"
	in.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		in.EventType = "generate_error"
		in.Error = err.Error()
	} else {
		in.EventType = "generate_response"
		in.ContentRaw = resp.Text
		if resp.Code != "" {
			in.ContentRaw = resp.Code
		}
	}
	g.log.Log(in)
	return resp, err
}

// Close closes the wrapped generator and the log.
func (g *LoggingGenerator) Close() {
	g.next.Close()
	_ = g.log.Close()
}
