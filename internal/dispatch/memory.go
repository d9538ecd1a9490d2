package dispatch

import (
	"context"
	"sync"
)

// MemoryQueue buffers work items in process for dev mode and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	items []WorkItem
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Publish(_ context.Context, item WorkItem) error {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return nil
}

// Drain returns and clears everything published so far.
func (q *MemoryQueue) Drain() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
