// Package engine contains the coordinator: the orchestrator that owns
// estimation requests and drives each one through its calculation layers
// in order, one layer in flight per request at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpekkanen/estiva/internal/layer"
	"github.com/jpekkanen/estiva/pkg/api"
)

// ErrRequestNotFound is returned when a request id is unknown.
var ErrRequestNotFound = errors.New("request not found")

// Options configures a Coordinator.
type Options struct {
	Backend api.Backend
	Storage api.Storage

	// WorkDir is the root under which per-request working directories
	// are created.
	WorkDir string

	// Layers are tried in order for every request.
	Layers []layer.Layer

	// Observer defaults to NoopObserver.
	Observer api.Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// requestState tracks one request through the layer sequence. The
// request record itself is mutated only by the single in-flight layer;
// everything else here is guarded by the coordinator mutex.
type requestState struct {
	req        *api.EstimationRequest
	layerIndex int
	active     bool
	done       chan struct{}
}

// Coordinator owns estimation requests. Each submitted request runs
// through the configured layers sequentially; a layer's aggregation
// callback triggers the next layer, so exactly one submission per
// request is ever active. The request record is safe to read once
// Wait has returned.
type Coordinator struct {
	backend  api.Backend
	storage  api.Storage
	workDir  string
	layers   *layerRegistry
	observer api.Observer
	logger   *slog.Logger

	mu       sync.Mutex
	requests map[string]*requestState
}

func New(opts Options) (*Coordinator, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("new coordinator: nil backend")
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("new coordinator: nil storage")
	}
	if opts.WorkDir == "" {
		return nil, fmt.Errorf("new coordinator: empty work dir")
	}
	if opts.Observer == nil {
		opts.Observer = api.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	layers := newLayerRegistry()
	for _, l := range opts.Layers {
		if err := layers.Register(l); err != nil {
			return nil, fmt.Errorf("new coordinator: %w", err)
		}
	}

	return &Coordinator{
		backend:  opts.Backend,
		storage:  opts.Storage,
		workDir:  opts.WorkDir,
		layers:   layers,
		observer: opts.Observer,
		logger:   opts.Logger,
		requests: make(map[string]*requestState),
	}, nil
}

// Layers returns the configured layer names in execution order.
func (c *Coordinator) Layers() []string {
	return c.layers.Names()
}

// Submit accepts a new estimation request and starts its first layer.
// It returns the request id immediately; use Wait to block until the
// request has been fully served.
func (c *Coordinator) Submit(ctx context.Context, forceFieldID string, properties []api.PropertyRecord) (string, error) {
	if len(properties) == 0 {
		return "", fmt.Errorf("submit: no properties to estimate")
	}

	id := uuid.NewString()
	req := api.NewEstimationRequest(id, forceFieldID, properties)
	st := &requestState{
		req:  req,
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.requests[id] = st
	c.mu.Unlock()

	c.observer.OnRequestStarted(ctx, req)
	c.advance(ctx, st)
	return id, nil
}

// Get returns the request record for id. While the request is still
// being served the record is owned by the in-flight layer; callers
// should Wait before inspecting results.
func (c *Coordinator) Get(id string) (*api.EstimationRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return st.req, nil
}

// Wait blocks until the request has been fully served or ctx is
// cancelled.
func (c *Coordinator) Wait(ctx context.Context, id string) error {
	c.mu.Lock()
	st, ok := c.requests[id]
	c.mu.Unlock()
	if !ok {
		return ErrRequestNotFound
	}

	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finished reports whether the request has been fully served.
func (c *Coordinator) Finished(id string) (bool, error) {
	c.mu.Lock()
	st, ok := c.requests[id]
	c.mu.Unlock()
	if !ok {
		return false, ErrRequestNotFound
	}

	select {
	case <-st.done:
		return true, nil
	default:
		return false, nil
	}
}

// advance schedules the next layer for the request, or finalizes it when
// the queue is empty or the layers are exhausted. It is the per-request
// serialization point: the coordinator mutex guarantees a single active
// submission per request id, and each new submission starts only from the
// previous layer's aggregation callback.
func (c *Coordinator) advance(ctx context.Context, st *requestState) {
	c.mu.Lock()
	if st.active {
		c.mu.Unlock()
		return
	}

	next := c.layers.At(st.layerIndex)
	if len(st.req.QueuedProperties) == 0 || next == nil {
		c.mu.Unlock()
		c.finalize(ctx, st)
		return
	}
	st.layerIndex++
	st.active = true
	c.mu.Unlock()

	queued := len(st.req.QueuedProperties)
	started := time.Now()
	workDir := filepath.Join(c.workDir, st.req.ID)

	callback := func(req *api.EstimationRequest) {
		c.mu.Lock()
		st.active = false
		c.mu.Unlock()

		c.observer.OnLayerCompleted(ctx, req, next.Name(), time.Since(started))
		c.advance(ctx, st)
	}

	err := next.Schedule(ctx, c.backend, c.storage, workDir, st.req, callback, false)
	if err != nil {
		// Submission failure: nothing was dispatched, so the layer's
		// callback will never fire. Record the failure and move on to
		// the next layer rather than stranding the request.
		c.logger.Error("layer submission failed",
			slog.String("request_id", st.req.ID),
			slog.String("layer", next.Name()),
			slog.Any("error", err),
		)
		c.observer.OnAggregationFailure(ctx, st.req, err)
		st.req.Exceptions = append(st.req.Exceptions, api.NewStructuredError(
			"layer %s submission failed: %v", next.Name(), err))

		c.mu.Lock()
		st.active = false
		c.mu.Unlock()
		c.advance(ctx, st)
		return
	}

	c.observer.OnLayerScheduled(ctx, st.req, next.Name(), queued)
}

// finalize routes everything still queued into the unsuccessful set and
// marks the request done.
func (c *Coordinator) finalize(ctx context.Context, st *requestState) {
	c.mu.Lock()
	select {
	case <-st.done:
		c.mu.Unlock()
		return
	default:
	}

	for _, property := range st.req.QueuedProperties {
		st.req.UnsuccessfulProperties[property.SubstanceID] =
			append(st.req.UnsuccessfulProperties[property.SubstanceID], property)
	}
	st.req.QueuedProperties = nil

	close(st.done)
	c.mu.Unlock()

	c.observer.OnRequestFinished(ctx, st.req)
}
