package session

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of settled paths awaiting delivery.
type queue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

// push appends path. It reports false once the queue is closed.
func (q *queue) push(path string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, path)
	q.mu.Unlock()

	q.wake()
	return true
}

// pop blocks until a path is available, the queue is closed or ctx is done.
func (q *queue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return "", false
		}
		if len(q.items) > 0 {
			path := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return path, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return "", false
		}
	}
}

// close drops queued paths and returns how many there were.
func (q *queue) close() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	q.wake()
	return n
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
