package backend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpekkanen/estiva/pkg/api"
)

func newTestBackend(t *testing.T, workers int) *Local {
	t.Helper()
	b := NewLocal(Options{Workers: workers})
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return b
}

func TestSubmitRunsTask(t *testing.T) {
	b := newTestBackend(t, 2)

	future, err := b.Submit(context.Background(), "unit-1",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			return res.Threads, nil
		})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	v, err := future.Result(context.Background())
	if err != nil {
		t.Fatalf("task returned error: %v", err)
	}
	if v != 1 {
		t.Fatalf("unexpected result %v", v)
	}
}

func TestSubmitPropagatesTaskError(t *testing.T) {
	b := newTestBackend(t, 1)

	boom := errors.New("boom")
	future, err := b.Submit(context.Background(), "unit-1",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			return nil, boom
		})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := future.Result(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
}

func TestDependenciesGateExecution(t *testing.T) {
	b := newTestBackend(t, 2)
	ctx := context.Background()

	release := make(chan struct{})
	var upstreamDone atomic.Bool

	upstream, err := b.Submit(ctx, "upstream",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			<-release
			upstreamDone.Store(true)
			return "coords", nil
		})
	if err != nil {
		t.Fatalf("Submit(upstream) failed: %v", err)
	}

	downstream, err := b.Submit(ctx, "downstream",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			if !upstreamDone.Load() {
				return nil, errors.New("ran before dependency resolved")
			}
			v, err := upstream.Result(ctx)
			if err != nil {
				return nil, err
			}
			return v.(string) + "+trajectory", nil
		}, upstream)
	if err != nil {
		t.Fatalf("Submit(downstream) failed: %v", err)
	}

	// Downstream must not run while upstream is blocked.
	select {
	case <-downstream.Done():
		t.Fatalf("downstream completed before its dependency")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	v, err := downstream.Result(ctx)
	if err != nil {
		t.Fatalf("downstream failed: %v", err)
	}
	if v != "coords+trajectory" {
		t.Fatalf("unexpected result %v", v)
	}
}

func TestDependencyErrorDoesNotBlockDependant(t *testing.T) {
	b := newTestBackend(t, 2)
	ctx := context.Background()

	failing, err := b.Submit(ctx, "failing",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			return nil, errors.New("upstream broke")
		})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// A barrier-style task runs regardless of the dependency's outcome
	// and sees its error through the future.
	barrier, err := b.Submit(ctx, "barrier",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			_, depErr := failing.Result(ctx)
			return depErr != nil, nil
		}, failing)
	if err != nil {
		t.Fatalf("Submit(barrier) failed: %v", err)
	}

	v, err := barrier.Result(ctx)
	if err != nil {
		t.Fatalf("barrier failed: %v", err)
	}
	if v != true {
		t.Fatalf("barrier did not observe the dependency error")
	}
}

func TestTaskPanicBecomesError(t *testing.T) {
	b := newTestBackend(t, 1)

	future, err := b.Submit(context.Background(), "panicky",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			panic("unexpected condition")
		})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err = future.Result(context.Background())
	if err == nil {
		t.Fatalf("expected error from panicking task")
	}

	// The pool survives the panic.
	ok, err := b.Submit(context.Background(), "after",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			return "alive", nil
		})
	if err != nil {
		t.Fatalf("Submit after panic failed: %v", err)
	}
	if v, err := ok.Result(context.Background()); err != nil || v != "alive" {
		t.Fatalf("pool did not survive panic: v=%v err=%v", v, err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	b := NewLocal(Options{Workers: 1})
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := b.Submit(context.Background(), "late",
		func(ctx context.Context, res api.ComputeResources) (any, error) {
			return nil, nil
		})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
