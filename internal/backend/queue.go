package backend

import (
	"context"

	"github.com/jpekkanen/estiva/pkg/api"
)

// task is one submitted unit ready to run: its function plus the future
// to resolve with the outcome.
type task struct {
	key    string
	fn     api.TaskFunc
	future *api.Future
}

// queue is a simple task queue backed by a buffered channel. It is safe
// for concurrent use.
type queue struct {
	ch chan task
}

// newQueue creates a queue with the given capacity. For tests and small
// deployments, a modest capacity (e.g. 1024) is fine.
func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &queue{
		ch: make(chan task, capacity),
	}
}

func (q *queue) enqueue(ctx context.Context, t task) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) dequeue(ctx context.Context) (*task, error) {
	select {
	case t := <-q.ch:
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *queue) len() int {
	return len(q.ch)
}
