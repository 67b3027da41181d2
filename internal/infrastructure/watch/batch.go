// Package watch re-runs work when pull request fixture files change.
package watch

import (
	"sort"
	"sync"
	"time"
)

// Batcher collects change events and hands them to a callback once the tree
// has been quiet for the window, one event per path with the latest change
// type. A steady stream of changes is flushed at least every maxDelay.
type Batcher struct {
	window   time.Duration
	maxDelay time.Duration
	onFlush  func([]ChangeEvent)

	mu      sync.Mutex
	pending map[string]ChangeEvent
	first   time.Time
	timer   *time.Timer
	stopped bool
}

// NewBatcher creates a batcher. A maxDelay below the window is raised to
// four windows.
func NewBatcher(window, maxDelay time.Duration, onFlush func([]ChangeEvent)) *Batcher {
	if maxDelay < window {
		maxDelay = 4 * window
	}
	return &Batcher{
		window:   window,
		maxDelay: maxDelay,
		onFlush:  onFlush,
		pending:  make(map[string]ChangeEvent),
	}
}

// Add records e and restarts the quiet window. Adds after Stop are dropped.
func (b *Batcher) Add(e ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	now := time.Now()
	if len(b.pending) == 0 {
		b.first = now
	}
	b.pending[e.Path] = e

	wait := b.window
	if deadline := b.first.Add(b.maxDelay); now.Add(wait).After(deadline) {
		wait = deadline.Sub(now)
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(wait, b.Flush)
}

// Flush hands the pending events to the callback, sorted by path. It does
// nothing when no events are pending.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.stopped || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := make([]ChangeEvent, 0, len(b.pending))
	for _, e := range b.pending {
		batch = append(batch, e)
	}
	b.pending = make(map[string]ChangeEvent)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	if b.onFlush != nil {
		b.onFlush(batch)
	}
}

// Pending returns the number of paths waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop drops pending events and cancels the scheduled flush.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	b.pending = make(map[string]ChangeEvent)
	if b.timer != nil {
		b.timer.Stop()
	}
}
