// Package backend provides an in-process implementation of the execution
// backend contract: a fixed worker pool fed by an in-memory task queue.
// It is intended for tests, development, and single-machine deployments.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jpekkanen/estiva/pkg/api"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("backend closed")

// Options configures a Local backend. Zero values fall back to defaults.
type Options struct {
	// Workers is the number of concurrent task executors. Defaults to 1.
	Workers int

	// QueueCapacity bounds the number of queued-but-not-running tasks.
	QueueCapacity int

	// Resources is handed to every TaskFunc. Defaults to one thread.
	Resources api.ComputeResources

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Local runs submitted tasks on an in-process worker pool. A task with
// dependencies is held back until every dependency future has resolved,
// successfully or not, and only then enqueued.
type Local struct {
	queue     *queue
	resources api.ComputeResources
	logger    *slog.Logger

	group  *errgroup.Group
	runCtx context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

var _ api.Backend = (*Local)(nil)

// NewLocal starts the worker pool immediately.
func NewLocal(opts Options) *Local {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Resources == (api.ComputeResources{}) {
		opts.Resources = api.ComputeResources{Threads: 1}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)

	b := &Local{
		queue:     newQueue(opts.QueueCapacity),
		resources: opts.Resources,
		logger:    opts.Logger,
		group:     group,
		runCtx:    runCtx,
		cancel:    cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		group.Go(b.runWorker)
	}
	return b
}

// Submit queues fn for execution once every future in deps has resolved.
// Dependency failures do not block the task; whether to act on an
// upstream error is fn's decision.
func (b *Local) Submit(ctx context.Context, key string, fn api.TaskFunc, deps ...*api.Future) (*api.Future, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if fn == nil {
		return nil, fmt.Errorf("submit %q: nil task function", key)
	}

	future := api.NewFuture(key)
	t := task{key: key, fn: fn, future: future}

	if len(deps) == 0 {
		if err := b.queue.enqueue(ctx, t); err != nil {
			return nil, fmt.Errorf("submit %q: %w", key, err)
		}
		return future, nil
	}

	remaining := int64(len(deps))
	var pending atomic.Int64
	pending.Store(remaining)

	for _, dep := range deps {
		dep.OnComplete(func(*api.Future) {
			if pending.Add(-1) != 0 {
				return
			}
			// The submitter's ctx may be long gone by now; gate on the
			// backend's own lifetime instead.
			if err := b.queue.enqueue(b.runCtx, t); err != nil {
				future.Complete(nil, fmt.Errorf("enqueue %q: %w", key, err))
			}
		})
	}
	return future, nil
}

// QueueLen returns the approximate number of tasks waiting for a worker.
func (b *Local) QueueLen() int {
	return b.queue.len()
}

// Close stops the workers and waits for in-flight tasks to return. Tasks
// still waiting on dependencies resolve with an error when their turn
// comes.
func (b *Local) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	return b.group.Wait()
}

func (b *Local) runWorker() error {
	for {
		t, err := b.queue.dequeue(b.runCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		b.execute(t)
	}
}

func (b *Local) execute(t *task) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("task panicked",
				slog.String("key", t.key),
				slog.Any("panic", r),
			)
			t.future.Complete(nil, fmt.Errorf("task %q panicked: %v\n%s", t.key, r, debug.Stack()))
		}
	}()

	value, err := t.fn(b.runCtx, b.resources)
	if err != nil {
		b.logger.Debug("task failed",
			slog.String("key", t.key),
			slog.Any("error", err),
		)
	}
	t.future.Complete(value, err)
}
