// Package ringlog keeps the most recent log lines for on-screen display.
package ringlog

import (
	"sync"
	"time"
)

const stampLayout = "15:04:05.000"

// entry is one retained line and when it was added
type entry struct {
	at   time.Time
	text string
}

// Buffer retains the last N lines. Safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []entry
	start   int // oldest entry
	count   int
	now     func() time.Time
}

// Option configures a Buffer
type Option func(*Buffer)

// WithClock sets the time source used to stamp lines
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a buffer that retains the last maxLines lines, at least one
func New(maxLines int, opts ...Option) *Buffer {
	b := &Buffer{
		entries: make([]entry, max(maxLines, 1)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add stores line, dropping the oldest one when full
func (b *Buffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := entry{at: b.now(), text: line}
	if b.count < len(b.entries) {
		b.entries[(b.start+b.count)%len(b.entries)] = e
		b.count++
		return
	}
	b.entries[b.start] = e
	b.start = (b.start + 1) % len(b.entries)
}

// Recent returns the retained lines as "[15:04:05.000] line", oldest first
func (b *Buffer) Recent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.count)
	for i := range out {
		e := b.entries[(b.start+i)%len(b.entries)]
		out[i] = "[" + e.at.Format(stampLayout) + "] " + e.text
	}
	return out
}

// Len returns the number of retained lines
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
