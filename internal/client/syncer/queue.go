package syncer

import (
	"context"
	"sync"
)

// workQueue is an unbounded FIFO of local note ids. An id is accepted once
// until Done is called for it, so a note that is queued or being uploaded
// is never queued twice.
type workQueue struct {
	mu      sync.Mutex
	items   []int64
	pending map[int64]struct{}
	ready   chan struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{
		pending: make(map[int64]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

// Push enqueues id and reports whether it was added.
func (q *workQueue) Push(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; ok {
		return false
	}
	q.pending[id] = struct{}{}
	q.items = append(q.items, id)
	q.signal()
	return true
}

// Pop blocks until an id is available or ctx is done. The id stays pending
// until Done.
func (q *workQueue) Pop(ctx context.Context) (int64, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Requeue moves an in-flight id to the back of the queue without releasing
// it, so Pending does not dip while the id waits for another attempt.
func (q *workQueue) Requeue(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[id] = struct{}{}
	q.items = append(q.items, id)
	q.signal()
}

// Done releases id so that it can be pushed again.
func (q *workQueue) Done(id int64) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

// Pending counts queued and in-flight ids.
func (q *workQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// signal must be called with mu held.
func (q *workQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
