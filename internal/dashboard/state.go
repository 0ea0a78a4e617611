package dashboard

import (
	"github.com/ashureev/agentdash/internal/domain"
)

// State is a point-in-time copy of the dashboard.
type State struct {
	Mode           domain.Mode                         `json:"mode"`
	Messages       []domain.ChatMessage                `json:"messages"`
	Progress       map[int64]domain.AgentProgressState `json:"progress"`
	Log            []domain.AgentLogEntry              `json:"log"`
	Task           string                              `json:"task"`
	TaskState      string                              `json:"taskState"`
	Execution      domain.ExecutionState               `json:"executionState"`
	ExecutionError string                              `json:"executionError,omitempty"`
	InstallRequest *domain.DependencyInstallRequest    `json:"installRequest,omitempty"`
	Session        *SessionView                        `json:"session,omitempty"`
	ChatID         string                              `json:"chatId,omitempty"`
	Busy           bool                                `json:"busy"`
}

// SessionView exposes the active generation session.
type SessionView struct {
	domain.GenerationSession
	Task     string   `json:"task"`
	LiveCode string   `json:"liveCode"`
	Total    int      `json:"total"`
	Diff     []string `json:"diff,omitempty"`
	Added    int      `json:"added"`
	Removed  int      `json:"removed"`
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Mode:           s.mode,
		Messages:       append([]domain.ChatMessage(nil), s.messages...),
		Progress:       make(map[int64]domain.AgentProgressState, len(s.progress)),
		Log:            s.log.Entries(),
		Execution:      s.gate.State(),
		ExecutionError: s.gate.Err(),
		InstallRequest: s.gate.Request(),
		Busy:           s.active != nil || s.chat != nil || s.pipeline != nil,
	}
	st.Task, st.TaskState = s.log.Task()
	for id, p := range s.progress {
		st.Progress[id] = p.Clone()
	}
	if s.transcript != nil {
		st.ChatID = s.transcript.ChatID()
	}
	if sess := s.active; sess != nil {
		view := &SessionView{
			GenerationSession: sess.GenerationSession,
			Task:              string(sess.task),
			LiveCode:          sess.LiveCode(),
			Total:             len(sess.FullCode),
		}
		if sess.diff != nil {
			view.Diff = sess.diff.Tagged()
			view.Added, view.Removed = sess.diff.Stats()
		}
		st.Session = view
	}
	return st
}

// Idle reports whether nothing is in flight, no install confirmation is
// pending and no client is subscribed.
func (s *Service) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == nil && s.chat == nil && s.pipeline == nil &&
		s.gate.State() != domain.ExecPendingInstallConfirmation && len(s.subs) == 0
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications are coalesced; read Snapshot after each one. The channel is
// closed by Close or by calling the returned cancel func.
func (s *Service) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subSeq++
	id := s.subSeq
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Service) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
