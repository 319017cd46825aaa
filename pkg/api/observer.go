package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the coordinator and calculation layers
// for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay aggregation.
type Observer interface {
	// OnRequestStarted is called once when an estimation request is
	// accepted, before its first layer is scheduled.
	OnRequestStarted(ctx context.Context, req *EstimationRequest)

	// OnLayerScheduled is called when a calculation layer has submitted
	// its graph to the backend. propertyCount is the number of properties
	// queued at submission time.
	OnLayerScheduled(ctx context.Context, req *EstimationRequest, layerName string, propertyCount int)

	// OnLayerCompleted is called after a layer's results have been
	// aggregated into the request, for both clean and failed passes.
	OnLayerCompleted(ctx context.Context, req *EstimationRequest, layerName string, duration time.Duration)

	// OnAggregationFailure is called when the aggregation guard catches an
	// unexpected failure. The request keeps being served.
	OnAggregationFailure(ctx context.Context, req *EstimationRequest, err error)

	// OnRequestFinished is called once when no further layers will run for
	// the request.
	OnRequestFinished(ctx context.Context, req *EstimationRequest)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRequestStarted(ctx context.Context, req *EstimationRequest) {}
func (NoopObserver) OnLayerScheduled(ctx context.Context, req *EstimationRequest, layerName string, propertyCount int) {
}
func (NoopObserver) OnLayerCompleted(ctx context.Context, req *EstimationRequest, layerName string, d time.Duration) {
}
func (NoopObserver) OnAggregationFailure(ctx context.Context, req *EstimationRequest, err error) {}
func (NoopObserver) OnRequestFinished(ctx context.Context, req *EstimationRequest)               {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRequestStarted(ctx context.Context, req *EstimationRequest) {
	for _, o := range c.observers {
		o.OnRequestStarted(ctx, req)
	}
}

func (c *CompositeObserver) OnLayerScheduled(ctx context.Context, req *EstimationRequest, layerName string, propertyCount int) {
	for _, o := range c.observers {
		o.OnLayerScheduled(ctx, req, layerName, propertyCount)
	}
}

func (c *CompositeObserver) OnLayerCompleted(ctx context.Context, req *EstimationRequest, layerName string, d time.Duration) {
	for _, o := range c.observers {
		o.OnLayerCompleted(ctx, req, layerName, d)
	}
}

func (c *CompositeObserver) OnAggregationFailure(ctx context.Context, req *EstimationRequest, err error) {
	for _, o := range c.observers {
		o.OnAggregationFailure(ctx, req, err)
	}
}

func (c *CompositeObserver) OnRequestFinished(ctx context.Context, req *EstimationRequest) {
	for _, o := range c.observers {
		o.OnRequestFinished(ctx, req)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs request / layer
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRequestStarted(ctx context.Context, req *EstimationRequest) {
	o.Logger.InfoContext(ctx, "request_started",
		slog.String("request_id", req.ID),
		slog.Int("queued_properties", len(req.QueuedProperties)),
	)
}

func (o *LoggingObserver) OnLayerScheduled(ctx context.Context, req *EstimationRequest, layerName string, propertyCount int) {
	o.Logger.DebugContext(ctx, "layer_scheduled",
		slog.String("request_id", req.ID),
		slog.String("layer", layerName),
		slog.Int("properties", propertyCount),
	)
}

func (o *LoggingObserver) OnLayerCompleted(ctx context.Context, req *EstimationRequest, layerName string, d time.Duration) {
	o.Logger.DebugContext(ctx, "layer_completed",
		slog.String("request_id", req.ID),
		slog.String("layer", layerName),
		slog.Duration("duration", d),
		slog.Int("remaining_properties", len(req.QueuedProperties)),
		slog.Int("exceptions", len(req.Exceptions)),
	)
}

func (o *LoggingObserver) OnAggregationFailure(ctx context.Context, req *EstimationRequest, err error) {
	o.Logger.ErrorContext(ctx, "aggregation_failure",
		slog.String("request_id", req.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRequestFinished(ctx context.Context, req *EstimationRequest) {
	o.Logger.InfoContext(ctx, "request_finished",
		slog.String("request_id", req.ID),
		slog.Int("estimated_substances", len(req.EstimatedProperties)),
		slog.Int("unsuccessful_substances", len(req.UnsuccessfulProperties)),
		slog.Int("exceptions", len(req.Exceptions)),
	)
}

// BasicMetrics collects simple counters and aggregate layer durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	requestsStarted     atomic.Int64
	requestsFinished    atomic.Int64
	layersScheduled     atomic.Int64
	layersCompleted     atomic.Int64
	aggregationFailures atomic.Int64
	totalLayerDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RequestsStarted  int64
	RequestsFinished int64
	PendingRequests  int64

	LayersScheduled     int64
	LayersCompleted     int64
	AggregationFailures int64
	AvgLayerDuration    time.Duration
}

func (m *BasicMetrics) OnRequestStarted(ctx context.Context, req *EstimationRequest) {
	m.requestsStarted.Add(1)
}

func (m *BasicMetrics) OnLayerScheduled(ctx context.Context, req *EstimationRequest, layerName string, propertyCount int) {
	m.layersScheduled.Add(1)
}

func (m *BasicMetrics) OnLayerCompleted(ctx context.Context, req *EstimationRequest, layerName string, d time.Duration) {
	m.layersCompleted.Add(1)
	m.totalLayerDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnAggregationFailure(ctx context.Context, req *EstimationRequest, err error) {
	m.aggregationFailures.Add(1)
}

func (m *BasicMetrics) OnRequestFinished(ctx context.Context, req *EstimationRequest) {
	m.requestsFinished.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.requestsStarted.Load()
	finished := m.requestsFinished.Load()
	layers := m.layersCompleted.Load()
	totalNs := m.totalLayerDuration.Load()

	var avg time.Duration
	if layers > 0 {
		avg = time.Duration(totalNs / layers)
	}

	return BasicMetricsSnapshot{
		RequestsStarted:     started,
		RequestsFinished:    finished,
		PendingRequests:     started - finished,
		LayersScheduled:     m.layersScheduled.Load(),
		LayersCompleted:     layers,
		AggregationFailures: m.aggregationFailures.Load(),
		AvgLayerDuration:    avg,
	}
}
