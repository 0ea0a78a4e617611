// Package sessionlog keeps the append-only agent action log and the current
// task/state line that is handed to the text-generation service as context.
package sessionlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/agentdash/internal/domain"
)

// DefaultContextEntries is how many trailing entries go into generation context.
const DefaultContextEntries = 20

// Log is safe for concurrent use. Entries are never mutated or reordered.
type Log struct {
	mu      sync.RWMutex
	entries []domain.AgentLogEntry
	task    string
	state   string
	now     func() time.Time
}

// New returns an empty log. A nil clock uses time.Now.
func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now, state: string(domain.StageIdle)}
}

// Append records an action and returns the stored entry.
func (l *Log) Append(action, result string) domain.AgentLogEntry {
	entry := domain.AgentLogEntry{Timestamp: l.now(), Action: action, Result: result}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return entry
}

// SetTask records the task currently being worked on.
func (l *Log) SetTask(task string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.task = task
}

// SetState records the current orchestrator state string.
func (l *Log) SetState(state string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
}

// Task returns the current task and state.
func (l *Log) Task() (task, state string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.task, l.state
}

// Len returns the number of stored entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of every entry in order.
func (l *Log) Entries() []domain.AgentLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AgentLogEntry(nil), l.entries...)
}

// Tail returns a copy of the last n entries. Storage is not truncated.
func (l *Log) Tail(n int) []domain.AgentLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	return append([]domain.AgentLogEntry(nil), l.entries[start:]...)
}

// ContextText renders the last n entries one per line for model context.
func (l *Log) ContextText(n int) string {
	tail := l.Tail(n)
	lines := make([]string, 0, len(tail))
	for _, e := range tail {
		lines = append(lines, FormatEntry(e))
	}
	return strings.Join(lines, "\n")
}

// FormatEntry renders one entry as "15:04:05 action -> result".
func FormatEntry(e domain.AgentLogEntry) string {
	line := fmt.Sprintf("%s %s", e.Timestamp.UTC().Format("15:04:05"), e.Action)
	if e.Result != "" {
		line += " -> " + e.Result
	}
	return line
}
