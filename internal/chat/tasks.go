package chat

import (
	"context"
	"sync"
)

// taskSet collects cancellation handles for background tasks so
// teardown can stop everything that is still running. Tasks remove
// themselves when they finish.
type taskSet struct {
	mu   sync.Mutex
	next int
	m    map[int]context.CancelFunc
}

func newTaskSet() *taskSet {
	return &taskSet{m: make(map[int]context.CancelFunc)}
}

// Add registers a cancel handle and returns a func that removes it
// again. The remove func is idempotent.
func (ts *taskSet) Add(cancel context.CancelFunc) func() {
	ts.mu.Lock()
	id := ts.next
	ts.next++
	ts.m[id] = cancel
	ts.mu.Unlock()

	return func() {
		ts.mu.Lock()
		delete(ts.m, id)
		ts.mu.Unlock()
	}
}

// CancelAll cancels every registered task and clears the set.
func (ts *taskSet) CancelAll() {
	ts.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(ts.m))
	for _, c := range ts.m {
		cancels = append(cancels, c)
	}
	ts.m = make(map[int]context.CancelFunc)
	ts.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}
