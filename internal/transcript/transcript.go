// Package transcript mirrors the dashboard message list into a chat store.
package transcript

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/store"
)

const (
	writeTimeout  = 10 * time.Second
	maxTitleRunes = 60
	defaultTitle  = "New chat"
)

// Synchronizer persists the latest message snapshot. The first write creates
// the chat; later writes patch it. Snapshots that arrive while a write is in
// flight are coalesced so only the newest one is written next. Progress
// messages are never persisted. Failures are logged and dropped.
type Synchronizer struct {
	store  store.ChatStore
	logger *slog.Logger
	spawn  func(func())

	mu      sync.Mutex
	chatID  string
	pending []domain.ChatMessage
	dirty   bool
	running bool
	written []domain.ChatMessage
	epoch   int
	idle    *sync.Cond
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithSpawn replaces the goroutine launcher. Tests pass an inline runner.
func WithSpawn(spawn func(func())) Option {
	return func(s *Synchronizer) { s.spawn = spawn }
}

// New creates a synchronizer writing to cs.
func New(cs store.ChatStore, logger *slog.Logger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{
		store:  cs,
		logger: logger,
		spawn:  func(fn func()) { go fn() },
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChatID returns the id of the persisted chat, or "" before the first write.
func (s *Synchronizer) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Reset points the synchronizer at chatID, or at a new chat when chatID is "".
// messages is the state already persisted under chatID.
func (s *Synchronizer) Reset(chatID string, messages []domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
	s.epoch++
	s.written = persistable(messages)
	s.pending = nil
	s.dirty = false
}

// Sync queues messages for persistence.
func (s *Synchronizer) Sync(messages []domain.ChatMessage) {
	snapshot := persistable(messages)
	if len(snapshot) == 0 {
		return
	}

	s.mu.Lock()
	s.pending = snapshot
	s.dirty = true
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.spawn(s.drain)
}

// Wait blocks until no write is queued or in flight.
func (s *Synchronizer) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running {
		s.idle.Wait()
	}
}

func (s *Synchronizer) drain() {
	for {
		s.mu.Lock()
		if !s.dirty {
			s.running = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		msgs := s.pending
		chatID, epoch := s.chatID, s.epoch
		s.dirty = false
		if slices.Equal(msgs, s.written) {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		id, err := s.write(chatID, msgs)

		s.mu.Lock()
		if err != nil {
			s.logger.Warn("Transcript write failed", "chat_id", chatID, "messages", len(msgs), "error", err)
		} else if s.epoch == epoch {
			s.chatID = id
			s.written = msgs
		}
		s.mu.Unlock()
	}
}

func (s *Synchronizer) write(chatID string, msgs []domain.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if chatID == "" {
		chat, err := s.store.CreateChat(ctx, Title(msgs), msgs)
		if err != nil {
			return "", err
		}
		s.logger.Debug("Transcript created", "chat_id", chat.ID, "messages", len(msgs))
		return chat.ID, nil
	}
	if _, err := s.store.UpdateChat(ctx, chatID, nil, msgs); err != nil {
		return "", err
	}
	return chatID, nil
}

// Title derives a chat title from the first user message.
func Title(msgs []domain.ChatMessage) string {
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		t := strings.Join(strings.Fields(m.Text), " ")
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > maxTitleRunes {
			t = string([]rune(t)[:maxTitleRunes-1]) + "…"
		}
		return t
	}
	return defaultTitle
}

func persistable(messages []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if !m.IsTransient() {
			out = append(out, m)
		}
	}
	return out
}
