// Package schedule provides owned, cancellable timer and interval handles.
//
// Every delay the orchestrator arms goes through a Scheduler so that a single
// Group can cancel all outstanding work of a session, and so tests can drive
// time deterministically with Manual.
package schedule

import (
	"sync"
	"time"
)

// Handle is an owned cancellation handle for a timer or interval.
type Handle interface {
	// Stop cancels the timer. It reports whether this call stopped it.
	Stop() bool
}

// Scheduler arms timers and intervals.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) Handle
	Every(d time.Duration, fn func()) Handle
}

// Real is a Scheduler backed by the runtime timers.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// After runs fn once after d.
func (Real) After(d time.Duration, fn func()) Handle {
	return &realTimer{t: time.AfterFunc(d, fn)}
}

// Every runs fn every d until stopped.
func (Real) Every(d time.Duration, fn func()) Handle {
	iv := &realInterval{ticker: time.NewTicker(d), done: make(chan struct{})}
	go iv.loop(fn)
	return iv
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) Stop() bool { return r.t.Stop() }

type realInterval struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (r *realInterval) loop(fn func()) {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			// a Stop racing with the tick wins
			select {
			case <-r.done:
				return
			default:
			}
			fn()
		}
	}
}

func (r *realInterval) Stop() bool {
	stopped := false
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
		stopped = true
	})
	return stopped
}

// Group tracks handles owned by one operation so they can be cancelled together.
type Group struct {
	mu      sync.Mutex
	handles []Handle
	closed  bool
}

// Add registers h with the group. Adding to a cancelled group stops h immediately.
func (g *Group) Add(h Handle) Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		h.Stop()
		return h
	}
	g.handles = append(g.handles, h)
	return h
}

// Cancel stops every handle in the group. Subsequent adds are stopped on arrival.
func (g *Group) Cancel() {
	g.mu.Lock()
	handles := g.handles
	g.handles = nil
	g.closed = true
	g.mu.Unlock()
	for _, h := range handles {
		h.Stop()
	}
}

// Cancelled reports whether Cancel has been called.
func (g *Group) Cancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Len returns the number of tracked handles.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}
