// Package stream reveals a final string incrementally under timer control.
package stream

import (
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/agentdash/internal/schedule"
)

// Defaults used by the dashboard.
const (
	DefaultCharInterval = 30 * time.Millisecond
	DefaultFrame        = 16 * time.Millisecond
	DefaultChunkMin     = 12 * time.Millisecond
	DefaultChunkMax     = 22 * time.Millisecond
	DefaultChunkSizeMin = 2
	DefaultChunkSizeMax = 4
)

type mode int

const (
	modeCharacter mode = iota
	modeChunked
)

// Profile selects how fast and in what steps text is revealed.
type Profile struct {
	mode mode

	// Character profile.
	Interval time.Duration
	Frame    time.Duration

	// Chunked profile.
	MinInterval time.Duration
	MaxInterval time.Duration
	MinChunk    int
	MaxChunk    int
	Rand        *rand.Rand
}

// Character reveals one character per tick and coalesces updates per frame.
func Character() Profile {
	return Profile{mode: modeCharacter, Interval: DefaultCharInterval, Frame: DefaultFrame}
}

// Chunked reveals 2-4 characters every 12-22ms. A nil rng uses a time seed.
func Chunked(rng *rand.Rand) Profile {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return Profile{
		mode:        modeChunked,
		MinInterval: DefaultChunkMin,
		MaxInterval: DefaultChunkMax,
		MinChunk:    DefaultChunkSizeMin,
		MaxChunk:    DefaultChunkSizeMax,
		Rand:        rng,
	}
}

// Handle controls one running delivery.
type Handle struct {
	sched    schedule.Scheduler
	text     string
	profile  Profile
	onUpdate func(string)
	onDone   func()

	mu        sync.Mutex
	pos       int
	delivered int
	lastEmit  time.Time
	emitted   bool
	tick      schedule.Handle
	flush     schedule.Handle
	finished  bool
	cancelled bool
}

// Start begins revealing text. onUpdate receives growing prefixes; onDone runs
// exactly once after the full text has been delivered. Neither callback runs
// synchronously inside Start.
func Start(s schedule.Scheduler, text string, p Profile, onUpdate func(string), onDone func()) *Handle {
	if onUpdate == nil {
		onUpdate = func(string) {}
	}
	if onDone == nil {
		onDone = func() {}
	}
	h := &Handle{sched: s, text: text, profile: p, onUpdate: onUpdate, onDone: onDone}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch p.mode {
	case modeChunked:
		h.tick = s.After(h.chunkDelay(), h.chunkTick)
	default:
		interval := p.Interval
		if interval <= 0 {
			interval = DefaultCharInterval
		}
		h.tick = s.Every(interval, h.charTick)
	}
	return h
}

// Cancel stops delivery without calling onDone. It is a no-op once finished.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished || h.cancelled {
		return
	}
	h.cancelled = true
	h.stopTimersLocked()
}

// Stop implements schedule.Handle so a delivery can join a schedule.Group.
func (h *Handle) Stop() bool {
	h.mu.Lock()
	active := !h.finished && !h.cancelled
	h.mu.Unlock()
	h.Cancel()
	return active
}

// Done reports whether the full text was delivered.
func (h *Handle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Delivered returns the number of bytes of text delivered so far.
func (h *Handle) Delivered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered
}

func (h *Handle) stopTimersLocked() {
	if h.tick != nil {
		h.tick.Stop()
	}
	if h.flush != nil {
		h.flush.Stop()
		h.flush = nil
	}
}

func (h *Handle) charTick() {
	h.mu.Lock()
	if h.finished || h.cancelled {
		h.mu.Unlock()
		return
	}
	if h.pos < len(h.text) {
		_, size := utf8.DecodeRuneInString(h.text[h.pos:])
		h.pos += size
	}
	if h.pos >= len(h.text) {
		h.completeLocked()
		return
	}

	now := h.sched.Now()
	frame := h.profile.Frame
	if frame <= 0 || !h.emitted || now.Sub(h.lastEmit) >= frame {
		prefix := h.emitLocked(now)
		h.mu.Unlock()
		h.onUpdate(prefix)
		return
	}
	if h.flush == nil {
		h.flush = h.sched.After(frame-now.Sub(h.lastEmit), h.flushFrame)
	}
	h.mu.Unlock()
}

func (h *Handle) flushFrame() {
	h.mu.Lock()
	h.flush = nil
	if h.finished || h.cancelled || h.pos == h.delivered {
		h.mu.Unlock()
		return
	}
	prefix := h.emitLocked(h.sched.Now())
	h.mu.Unlock()
	h.onUpdate(prefix)
}

func (h *Handle) chunkTick() {
	h.mu.Lock()
	if h.finished || h.cancelled {
		h.mu.Unlock()
		return
	}
	h.pos += h.chunkSize()
	if h.pos >= len(h.text) {
		h.completeLocked()
		return
	}
	for h.pos < len(h.text) && !utf8.RuneStart(h.text[h.pos]) {
		h.pos++
	}
	prefix := h.emitLocked(h.sched.Now())
	h.tick = h.sched.After(h.chunkDelay(), h.chunkTick)
	h.mu.Unlock()
	h.onUpdate(prefix)
}

// completeLocked delivers the exact full text and fires onDone. It releases h.mu.
func (h *Handle) completeLocked() {
	h.pos = len(h.text)
	h.delivered = len(h.text)
	h.finished = true
	h.stopTimersLocked()
	h.mu.Unlock()
	h.onUpdate(h.text)
	h.onDone()
}

func (h *Handle) emitLocked(now time.Time) string {
	h.delivered = h.pos
	h.lastEmit = now
	h.emitted = true
	return h.text[:h.pos]
}

func (h *Handle) chunkDelay() time.Duration {
	lo, hi := h.profile.MinInterval, h.profile.MaxInterval
	if lo <= 0 {
		lo = DefaultChunkMin
	}
	if hi < lo {
		hi = lo
	}
	if h.profile.Rand == nil || hi == lo {
		return lo
	}
	return lo + time.Duration(h.profile.Rand.Int64N(int64(hi-lo)+1))
}

func (h *Handle) chunkSize() int {
	lo, hi := h.profile.MinChunk, h.profile.MaxChunk
	if lo <= 0 {
		lo = DefaultChunkSizeMin
	}
	if hi < lo {
		hi = lo
	}
	if h.profile.Rand == nil || hi == lo {
		return lo
	}
	return lo + h.profile.Rand.IntN(hi-lo+1)
}
