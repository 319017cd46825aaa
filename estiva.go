package estiva

import (
	"log/slog"

	"github.com/jpekkanen/estiva/internal/backend"
	"github.com/jpekkanen/estiva/internal/engine"
	"github.com/jpekkanen/estiva/internal/graph"
	"github.com/jpekkanen/estiva/internal/layer"
	"github.com/jpekkanen/estiva/internal/registry"
	"github.com/jpekkanen/estiva/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	PathAddress            = api.PathAddress
	Accessor               = api.Accessor
	Protocol               = api.Protocol
	ProtocolBase           = api.ProtocolBase
	ProtocolSchema         = api.ProtocolSchema
	InputSpec              = api.InputSpec
	OutputSpec             = api.OutputSpec
	MergePolicy            = api.MergePolicy
	ComputeResources       = api.ComputeResources
	TaskFunc               = api.TaskFunc
	Backend                = api.Backend
	Future                 = api.Future
	Storage                = api.Storage
	StoredArtifact         = api.StoredArtifact
	DataManifest           = api.DataManifest
	EstimationRequest      = api.EstimationRequest
	PropertyRecord         = api.PropertyRecord
	CalculationLayerResult = api.CalculationLayerResult
	StructuredError        = api.StructuredError
	Observer               = api.Observer
	LoggingObserver        = api.LoggingObserver
	BasicMetrics           = api.BasicMetrics
	BasicMetricsSnapshot   = api.BasicMetricsSnapshot
	CompositeObserver      = api.CompositeObserver
	NoopObserver           = api.NoopObserver
)

// Re-export merge policies for convenience.

const (
	MergeUnmanaged    = api.MergeUnmanaged
	MergeExactlyEqual = api.MergeExactlyEqual
	MergeSmallest     = api.MergeSmallest
	MergeGreatest     = api.MergeGreatest
)

// Re-export common constructors and helpers.

var (
	NewPathAddress       = api.NewPathAddress
	ParsePathAddress     = api.ParsePathAddress
	NewProtocolBase      = api.NewProtocolBase
	NewEstimationRequest = api.NewEstimationRequest
	NewStructuredError   = api.NewStructuredError
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	LoadManifest         = api.LoadManifest
	HasManifest          = api.HasManifest
)

// Protocol registry
// These wrap the internal/registry package so external callers never need
// to import internal packages.

type (
	ProtocolRegistry = registry.ProtocolRegistry
	ProtocolFactory  = registry.Factory
)

// NewProtocolRegistry returns an empty protocol type registry.
func NewProtocolRegistry() *ProtocolRegistry {
	return registry.New()
}

// Workflows and graphs

type (
	Workflow = graph.Workflow
	Graph    = graph.Graph
)

// NewGraph returns an empty deduplicating protocol graph.
func NewGraph() *Graph {
	return graph.NewGraph()
}

// Calculation layers

type (
	Layer         = layer.Layer
	WorkflowLayer = layer.WorkflowLayer
	Planner       = layer.Planner
	Callback      = layer.Callback
)

// NewWorkflowLayer returns a calculation layer that estimates properties
// by planning, deduplicating, and executing one workflow per property.
func NewWorkflowLayer(name string, plan Planner, logger *slog.Logger) *WorkflowLayer {
	return layer.NewWorkflowLayer(name, plan, logger)
}

// Execution backends

type LocalBackend = backend.Local

// LocalBackendOptions configures NewLocalBackend.
type LocalBackendOptions = backend.Options

// NewLocalBackend starts an in-process worker pool implementing the
// execution backend contract.
func NewLocalBackend(opts LocalBackendOptions) *LocalBackend {
	return backend.NewLocal(opts)
}

// Coordinator

type (
	Coordinator        = engine.Coordinator
	CoordinatorOptions = engine.Options
)

// ErrRequestNotFound is returned by Coordinator lookups for unknown ids.
var ErrRequestNotFound = engine.ErrRequestNotFound

// NewCoordinator wires a backend, a storage collaborator, and an ordered
// layer sequence into a request coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	return engine.New(opts)
}
