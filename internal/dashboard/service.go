package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/deps"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/intent"
	"github.com/ashureev/agentdash/internal/schedule"
	"github.com/ashureev/agentdash/internal/sessionlog"
	"github.com/ashureev/agentdash/internal/transcript"
)

// Service is one dashboard conversation. All state lives behind mu; every
// timer, stream and network continuation re-checks that its operation is
// still the active one before it mutates anything.
type Service struct {
	opts   Options
	sched  schedule.Scheduler
	logger *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	mode     domain.Mode
	messages []domain.ChatMessage
	progress map[int64]domain.AgentProgressState
	lastID   int64
	seq      int64

	log        *sessionlog.Log
	transcript *transcript.Synchronizer

	active *session
	chat   *chatTurn

	gate     *deps.Gate
	pipeline *pipelineRun
	artifact artifact

	subs   map[int]chan struct{}
	subSeq int

	// deferred holds work queued under mu and spawned by unlock.
	deferred []func()
}

// artifact is the last file written by a finished generation session.
type artifact struct {
	path        string
	code        string
	buildOutput string
}

// New creates a dashboard service in agent mode.
func New(opts Options) *Service {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:       opts,
		sched:      opts.Scheduler,
		logger:     opts.Logger.With("user_id", opts.UserID, "session_id", opts.SessionID),
		rootCtx:    ctx,
		rootCancel: cancel,
		mode:       domain.ModeAgent,
		progress:   make(map[int64]domain.AgentProgressState),
		log:        sessionlog.New(opts.Scheduler.Now),
		gate:       deps.NewGate(),
		subs:       make(map[int]chan struct{}),
	}
	if opts.Chats != nil {
		s.transcript = transcript.New(opts.Chats, s.logger, transcript.WithSpawn(opts.Spawn))
	}
	return s
}

// Submit appends the user's prompt and starts either a generation session or
// a conversational reply, superseding whatever was in flight. It returns the
// id of the assistant message that will carry the reply.
func (s *Service) Submit(ctx context.Context, prompt string) (int64, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return 0, ErrEmptyPrompt
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	mode := s.mode
	s.mu.Unlock()

	generate := mode == domain.ModeAgent && intent.Classify(prompt)
	var ws workspace
	if generate {
		ws = s.loadWorkspace(ctx)
	}

	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.appendMessage(domain.ChatMessage{Role: domain.RoleUser, Text: prompt, Kind: domain.KindText})
	s.cancelActiveLocked("superseded")

	var id int64
	if generate {
		sig := intent.Explain(prompt)
		s.log.Append("Classified", fmt.Sprintf("generate (%s)", signalText(sig)))
		id = s.startGenerationLocked(genRequest{
			task:   agent.TaskCode,
			prompt: prompt,
			target: ws.resolve(prompt),
			ws:     ws,
		})
	} else {
		s.log.Append("Classified", "conversation ("+string(mode)+" mode)")
		id = s.startChatLocked(prompt)
	}
	s.notifyLocked()
	return id, nil
}

// SetMode switches between agent and chat mode. Switching cancels every
// outstanding operation, including a pending install confirmation.
func (s *Service) SetMode(mode domain.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return ErrClosed
	}
	if s.mode == mode {
		return nil
	}
	s.cancelActiveLocked("mode switched")
	s.resetPipelineLocked()
	s.mode = mode
	s.log.Append("Mode", string(mode))
	s.notifyLocked()
	return nil
}

// Close cancels all outstanding work. Later calls are no-ops.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelActiveLocked("closed")
	s.resetPipelineLocked()
	s.closed = true
	s.rootCancel()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Closed reports whether Close has been called.
func (s *Service) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LoadTranscript replaces the conversation with a persisted chat. Later
// changes are patched into that chat.
func (s *Service) LoadTranscript(ctx context.Context, chatID string) error {
	if s.opts.Chats == nil {
		return ErrNoTranscripts
	}
	chat, err := s.opts.Chats.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load transcript %s: %w", chatID, err)
	}

	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return ErrClosed
	}
	s.cancelActiveLocked("transcript loaded")
	s.resetPipelineLocked()
	s.messages = s.messages[:0]
	for _, m := range chat.Messages {
		if m.IsTransient() {
			continue
		}
		s.messages = append(s.messages, m)
		if m.ID > s.lastID {
			s.lastID = m.ID
		}
	}
	s.transcript.Reset(chat.ID, s.messages)
	s.log.Append("Loaded transcript", fmt.Sprintf("%s (%d messages)", chat.ID, len(s.messages)))
	s.notifyLocked()
	return nil
}

// goLocked queues fn to run through Spawn once mu is released, so inline
// spawners never re-enter the lock.
func (s *Service) goLocked(fn func()) {
	s.deferred = append(s.deferred, fn)
}

// unlock releases mu and spawns the work queued while it was held.
func (s *Service) unlock() {
	fns := s.deferred
	s.deferred = nil
	s.mu.Unlock()
	for _, fn := range fns {
		s.opts.Spawn(fn)
	}
}

// nextIDLocked returns max(now in ms, last+1).
func (s *Service) nextIDLocked() int64 {
	id := s.sched.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Service) appendMessage(m domain.ChatMessage) int64 {
	if m.ID == 0 {
		m.ID = s.nextIDLocked()
	}
	s.messages = append(s.messages, m)
	return m.ID
}

func (s *Service) messageIndex(id int64) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) setMessageText(id int64, text string) {
	if i := s.messageIndex(id); i >= 0 {
		s.messages[i].Text = text
	}
}

func (s *Service) removeMessage(id int64) {
	if i := s.messageIndex(id); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
	}
}

// cancelActiveLocked stops the in-flight generation session or chat turn and
// drops its unfinished assistant message.
func (s *Service) cancelActiveLocked(reason string) {
	if sess := s.active; sess != nil {
		s.active = nil
		sess.stop()
		s.removeMessage(sess.MessageID)
		delete(s.progress, sess.MessageID)
		s.log.Append("Cancelled generation", reason)
		s.logger.Debug("Generation session cancelled", "session", sess.ID, "message_id", sess.MessageID, "reason", reason)
	}
	if turn := s.chat; turn != nil {
		s.chat = nil
		turn.stop()
		s.removeMessage(turn.messageID)
		s.log.Append("Cancelled reply", reason)
	}
	s.log.SetState(string(domain.StageIdle))
}

func (s *Service) syncTranscriptLocked() {
	if s.transcript != nil {
		s.transcript.Sync(s.messages)
	}
}

// WaitTranscript blocks until queued transcript writes have finished.
func (s *Service) WaitTranscript() {
	if s.transcript != nil {
		s.transcript.Wait()
	}
}

func signalText(sig intent.Signals) string {
	var parts []string
	for _, p := range []struct {
		on   bool
		name string
	}{
		{sig.Action, "action"}, {sig.Domain, "ui"}, {sig.Button, "button"}, {sig.Tech, "tech"},
		{sig.Effect, "effect"}, {sig.Edit, "edit"}, {sig.Long, "long"},
	} {
		if p.on {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "+")
}
