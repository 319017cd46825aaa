package api

import (
	"context"
	"sync"
)

// ComputeResources describes what a single task execution may use.
type ComputeResources struct {
	Threads int
	GPUs    int
}

// TaskFunc is a unit of work submitted to an execution backend.
type TaskFunc func(ctx context.Context, resources ComputeResources) (any, error)

// Backend is the execution backend contract this core consumes. Submitted
// tasks run outside the core's control; the returned Future is the only
// handle on them. A task with dependencies becomes eligible to run once
// every dependency future has completed, regardless of whether those
// completed successfully; error handling between dependent tasks is the
// submitter's concern.
//
// Once submitted, a task runs to completion or failure; there is no
// cancellation of in-flight work.
type Backend interface {
	Submit(ctx context.Context, key string, fn TaskFunc, deps ...*Future) (*Future, error)
}

// Future is the completion handle for one submitted task: a value/error
// pair plus a completion signal. It unifies the synchronous and
// asynchronous consumption styles: block on Result, or register a
// listener with OnComplete.
type Future struct {
	key string

	mu        sync.Mutex
	completed bool
	value     any
	err       error
	listeners []func(*Future)

	done chan struct{}
}

// NewFuture creates an incomplete future. Intended for backend
// implementations.
func NewFuture(key string) *Future {
	return &Future{
		key:  key,
		done: make(chan struct{}),
	}
}

// Key returns the submission key the future was created with.
func (f *Future) Key() string { return f.key }

// Done returns a channel closed when the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Complete resolves the future and notifies listeners. Calling it more
// than once is a no-op; the first resolution wins.
func (f *Future) Complete(value any, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.value = value
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	f.mu.Unlock()

	close(f.done)
	for _, fn := range listeners {
		fn(f)
	}
}

// Result blocks until the task finishes (or ctx is cancelled) and returns
// its value and error.
func (f *Future) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// OnComplete registers a listener invoked once the future resolves. If the
// future is already resolved the listener runs immediately on the calling
// goroutine; otherwise it runs on the goroutine that calls Complete.
func (f *Future) OnComplete(fn func(*Future)) {
	f.mu.Lock()
	if !f.completed {
		f.listeners = append(f.listeners, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f)
}

// Release drops the resolved value so backends holding large results can
// free them. The completion state and error are kept.
func (f *Future) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		f.value = nil
	}
}
