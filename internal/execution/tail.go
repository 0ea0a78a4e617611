package execution

import (
	"sync"
	"unicode/utf8"
)

// Tail is a fixed-size circular buffer that keeps the most recent command
// output. Commands like a verbose install cannot exhaust memory through it.
type Tail struct {
	buf  []byte
	size int
	head int // write position
	tail int // read position
	full bool
	mu   sync.RWMutex
}

// NewTail creates a buffer holding at most size bytes (16KB when size <= 0).
func NewTail(size int) *Tail {
	if size <= 0 {
		size = 16 * 1024
	}
	return &Tail{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write implements io.Writer. When the buffer is full, the oldest bytes are
// overwritten.
func (t *Tail) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if t.full {
			t.tail = (t.tail + 1) % t.size
		}
		t.buf[t.head] = b
		t.head = (t.head + 1) % t.size
		if t.head == t.tail {
			t.full = true
		}
	}
	return len(p), nil
}

// String returns the buffered output in write order. A leading partial rune
// left by wrap-around is dropped.
func (t *Tail) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []byte
	switch {
	case !t.full && t.head == t.tail:
		return ""
	case t.head > t.tail:
		out = t.buf[t.tail:t.head]
	default:
		out = append(append([]byte(nil), t.buf[t.tail:]...), t.buf[:t.head]...)
	}
	for len(out) > 0 && !utf8.RuneStart(out[0]) {
		out = out[1:]
	}
	return string(out)
}

// Len returns the number of buffered bytes.
func (t *Tail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch {
	case t.full:
		return t.size
	case t.head >= t.tail:
		return t.head - t.tail
	default:
		return (t.size - t.tail) + t.head
	}
}

// Reset clears the buffer.
func (t *Tail) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.head = 0
	t.tail = 0
	t.full = false
}
