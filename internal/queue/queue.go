// Package queue provides the unbounded FIFO handoff between the submission
// facade and the processor. Many producers, one consumer; producers never
// block.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded multi-producer single-consumer FIFO of order row ids.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []int64
	closed bool
}

// New constructs an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends an id. Never blocks. Puts after Close are dropped.
func (q *Queue) Put(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, id)
	q.cond.Signal()
}

// Pop blocks until an id is available, the context is cancelled, or the
// queue is closed and drained. The second return is false when no id was
// dequeued.
func (q *Queue) Pop(ctx context.Context) (int64, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if ctx.Err() != nil || len(q.items) == 0 {
		return 0, false
	}
	return q.popLocked(), true
}

// TryPop dequeues without blocking.
func (q *Queue) TryPop() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	return q.popLocked(), true
}

func (q *Queue) popLocked() int64 {
	id := q.items[0]
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return id
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting ids and unblocks the consumer once drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
