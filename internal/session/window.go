// Package session maintains per-call conversation state: a rolling window of
// recent transcript fragments per session and a registry that tracks live
// sessions and expires idle ones.
package session

import (
	"strings"
	"sync"
	"time"
)

// Fragment is a single transcribed audio segment stored in a [Window].
type Fragment struct {
	// Text is the transcript text of the segment.
	Text string

	// Sequence is the caller-supplied chunk identifier. It is monotonically
	// increasing per session and breaks ties between fragments received in
	// the same instant.
	Sequence uint64

	// ReceivedAt records when the fragment entered the window.
	ReceivedAt time.Time
}

// Window maintains the rolling conversation context for one session. It
// retains at most maxCount fragments and drops fragments older than maxAge.
// Eviction is lazy: it runs on every [Window.Append] call, always from the
// oldest end, so a quiet session keeps its stale fragments in memory until
// the next append or an external sweep.
//
// All methods are safe for concurrent use.
type Window struct {
	mu        sync.RWMutex
	fragments []Fragment
	maxCount  int
	maxAge    time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewWindow creates a window that retains at most maxCount fragments and
// evicts fragments older than maxAge.
func NewWindow(maxCount int, maxAge time.Duration) *Window {
	return &Window{
		fragments: make([]Fragment, 0, maxCount),
		maxCount:  maxCount,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Append adds a transcript fragment to the window, stamps it with the current
// time, and evicts fragments that exceed the configured age or count. It
// returns the number of fragments evicted by this call.
func (w *Window) Append(text string, sequence uint64) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.fragments = append(w.fragments, Fragment{
		Text:       text,
		Sequence:   sequence,
		ReceivedAt: w.now(),
	})
	return w.evict()
}

// Flatten returns all current fragment texts joined with a single space, in
// arrival order. It never evicts; the view reflects whatever the last Append
// left behind.
func (w *Window) Flatten() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.fragments) == 0 {
		return ""
	}
	parts := make([]string, len(w.fragments))
	for i, f := range w.fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

// Fragments returns a copy of the current fragments in arrival order.
func (w *Window) Fragments() []Fragment {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Fragment, len(w.fragments))
	copy(out, w.fragments)
	return out
}

// Len returns the number of fragments currently retained.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.fragments)
}

// Reset discards all fragments. The window remains usable afterwards.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fragments = make([]Fragment, 0, w.maxCount)
}

// evict removes fragments that are too old or exceed maxCount, oldest first.
// Must be called with w.mu held. Returns the number of fragments removed.
//
// Survivors are copied to a fresh backing array so evicted fragments do not
// pin memory for the lifetime of the session.
func (w *Window) evict() int {
	cutoff := w.now().Add(-w.maxAge)

	start := 0
	for start < len(w.fragments) && w.fragments[start].ReceivedAt.Before(cutoff) {
		start++
	}

	keep := w.fragments[start:]
	if len(keep) > w.maxCount {
		keep = keep[len(keep)-w.maxCount:]
	}

	evicted := len(w.fragments) - len(keep)
	if evicted > 0 {
		fresh := make([]Fragment, len(keep), w.maxCount)
		copy(fresh, keep)
		w.fragments = fresh
	}
	return evicted
}
