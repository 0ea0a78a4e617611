package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Factory builds the service for a new user/session pair.
type Factory func(userID, sessionID string) *Service

type entry struct {
	svc      *Service
	lastSeen time.Time
}

// Registry holds one Service per browser session.
type Registry struct {
	factory Factory
	now     func() time.Time

	mu     sync.Mutex
	active map[string]map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		now:     time.Now,
		active:  make(map[string]map[string]*entry),
	}
}

// Get returns the service for userID and sessionID, creating it on first use.
func (r *Registry) Get(userID, sessionID string) *Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.active[userID]
	if !ok {
		sessions = make(map[string]*entry)
		r.active[userID] = sessions
	}
	e, ok := sessions[sessionID]
	if !ok || e.svc.Closed() {
		e = &entry{svc: r.factory(userID, sessionID)}
		sessions[sessionID] = e
		slog.Info("Dashboard session created", "user_id", userID, "session_id", sessionID)
	}
	e.lastSeen = r.now()
	return e.svc
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

// Reap closes idle sessions that have not been touched within ttl and
// returns how many were removed. Sessions with work in flight, a pending
// install confirmation or a connected client are kept.
func (r *Registry) Reap(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	var expired []*Service

	r.mu.Lock()
	for userID, sessions := range r.active {
		for sessionID, e := range sessions {
			if e.lastSeen.After(cutoff) || !e.svc.Idle() {
				continue
			}
			expired = append(expired, e.svc)
			delete(sessions, sessionID)
			slog.Info("Dashboard session expired", "user_id", userID, "session_id", sessionID)
		}
		if len(sessions) == 0 {
			delete(r.active, userID)
		}
	}
	r.mu.Unlock()

	for _, svc := range expired {
		svc.Close()
	}
	return len(expired)
}

// StartReaper sweeps idle sessions every interval until ctx is done.
func (r *Registry) StartReaper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Dashboard reaper started", "interval", interval, "ttl", ttl)
		for {
			select {
			case <-ticker.C:
				if n := r.Reap(ttl); n > 0 {
					slog.Info("Dashboard reaper closed idle sessions", "count", n)
				}
			case <-ctx.Done():
				slog.Info("Dashboard reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var all []*Service
	for _, sessions := range r.active {
		for _, e := range sessions {
			all = append(all, e.svc)
		}
	}
	r.active = make(map[string]map[string]*entry)
	r.mu.Unlock()

	for _, svc := range all {
		svc.Close()
	}
}
