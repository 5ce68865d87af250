// Package ratelimit implements the client-side sliding window used to
// throttle API calls and navigations before they hit the network.
package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding log of timestamps. At most `limit` entries may
// fall within the trailing `span`; older entries are pruned on every
// check.
type Window struct {
	mu    sync.Mutex
	limit int
	span  time.Duration
	log   []time.Time
	now   func() time.Time
}

func NewWindow(limit int, span time.Duration) *Window {
	return &Window{limit: limit, span: span, now: time.Now}
}

// SetNowFunc swaps the clock; tests only.
func (w *Window) SetNowFunc(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

// Allow reports whether another operation fits in the window.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	return len(w.log) < w.limit
}

// Record logs one operation at the current instant.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log = append(w.log, w.now())
}

// Count returns the number of operations within the trailing span.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	return len(w.log)
}

func (w *Window) prune() {
	cutoff := w.now().Add(-w.span)
	i := 0
	for ; i < len(w.log); i++ {
		if w.log[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.log = append(w.log[:0], w.log[i:]...)
	}
}
