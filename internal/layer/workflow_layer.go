package layer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jpekkanen/estiva/internal/graph"
	"github.com/jpekkanen/estiva/pkg/api"
)

// Planner builds the workflow estimating one property, or returns nil to
// signal that this layer cannot handle the property. The returned
// workflow must not be instance-tagged; the layer tags it.
type Planner func(property api.PropertyRecord, forceFieldID string) (*graph.Workflow, error)

// WorkflowLayer estimates properties by building one workflow per queued
// property, collapsing structurally identical sub-graphs, and running the
// surviving nodes leaf to root on the backend.
type WorkflowLayer struct {
	name   string
	plan   Planner
	logger *slog.Logger
}

var _ Layer = (*WorkflowLayer)(nil)

func NewWorkflowLayer(name string, plan Planner, logger *slog.Logger) *WorkflowLayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowLayer{name: name, plan: plan, logger: logger}
}

func (l *WorkflowLayer) Name() string { return l.name }

func (l *WorkflowLayer) Schedule(ctx context.Context, backend api.Backend, storage api.Storage,
	workDir string, req *api.EstimationRequest, callback Callback, synchronous bool) error {

	g := graph.NewGraph()

	// planned keeps one slot per queued property: the workflow estimating
	// it, or nil when the planner declined. Nil slots become nil results
	// so aggregation can tell "declined" from "lost".
	planned := make([]*graph.Workflow, 0, len(req.QueuedProperties))

	for _, property := range req.QueuedProperties {
		w, err := l.plan(property, req.ForceFieldID)
		if err != nil {
			return fmt.Errorf("layer %s: plan %s: %w", l.name, property.ID, err)
		}
		if w == nil {
			planned = append(planned, nil)
			continue
		}
		if err := w.ApplyInstanceTag(); err != nil {
			return fmt.Errorf("layer %s: %w", l.name, err)
		}
		if err := g.AddWorkflow(w); err != nil {
			return fmt.Errorf("layer %s: %w", l.name, err)
		}
		planned = append(planned, w)
	}

	ordered, err := g.ExecutionOrder()
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.name, err)
	}

	// Submit every node leaf to root, one future per unit. A node's task
	// refuses to run if any upstream unit failed, so failures propagate
	// down each chain without poisoning unrelated chains.
	futures := make(map[string]*api.Future, len(ordered))
	all := make([]*api.Future, 0, len(ordered))

	for _, node := range ordered {
		deps := make([]*api.Future, 0)
		for _, dep := range node.Dependencies() {
			if f, ok := futures[dep.Origin()]; ok {
				deps = append(deps, f)
			}
		}

		future, err := backend.Submit(ctx, node.ID(), l.nodeTask(g, node, deps, workDir), deps...)
		if err != nil {
			return fmt.Errorf("layer %s: submit %s: %w", l.name, node.ID(), err)
		}
		futures[node.ID()] = future
		all = append(all, future)
	}

	// One barrier task depending on every unit: aggregation never starts
	// before the whole submission has resolved.
	barrier, err := backend.Submit(ctx, "return_"+req.ID,
		func(ctx context.Context, _ api.ComputeResources) (any, error) {
			return l.collectResults(ctx, g, planned, futures), nil
		}, all...)
	if err != nil {
		return fmt.Errorf("layer %s: submit barrier: %w", l.name, err)
	}

	if synchronous {
		l.aggregateFromFuture(ctx, barrier, storage, req, callback)
		return nil
	}
	barrier.OnComplete(func(f *api.Future) {
		l.aggregateFromFuture(context.WithoutCancel(ctx), f, storage, req, callback)
	})
	return nil
}

// nodeTask wraps one protocol node into a backend task: wait out the
// upstream futures, pull referenced values across, then execute in a
// per-node working directory.
func (l *WorkflowLayer) nodeTask(g *graph.Graph, node api.Protocol, deps []*api.Future, workDir string) api.TaskFunc {
	return func(ctx context.Context, resources api.ComputeResources) (any, error) {
		for _, dep := range deps {
			if _, err := dep.Result(ctx); err != nil {
				return nil, fmt.Errorf("upstream %s failed: %w", dep.Key(), err)
			}
		}

		if err := resolveInputs(g, node); err != nil {
			return nil, err
		}

		nodeDir := filepath.Join(workDir, node.ID())
		if err := os.MkdirAll(nodeDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir for %s: %w", node.ID(), err)
		}

		outputs, err := node.Execute(ctx, nodeDir, resources)
		if err != nil {
			return nil, err
		}
		return outputs, nil
	}
}

// resolveInputs replaces every reference-valued input of node with the
// referenced value from the already-executed upstream node.
func resolveInputs(g *graph.Graph, node api.Protocol) error {
	for _, spec := range node.Inputs() {
		value, err := node.Value(api.NewPathAddress(spec.Name))
		if err != nil {
			return err
		}
		addr, ok := value.(api.PathAddress)
		if !ok || addr.IsLocal() || addr.Origin() == node.ID() {
			continue
		}

		upstream, found := g.Node(addr.Origin())
		if !found {
			return &api.AddressResolutionError{Path: addr.String(), Reason: "references a node not in the graph"}
		}
		resolved, err := upstream.Value(addr)
		if err != nil {
			return err
		}
		if err := node.SetValue(api.NewPathAddress(spec.Name, node.ID()), resolved); err != nil {
			return err
		}
	}
	return nil
}

// collectResults builds one CalculationLayerResult per queued property
// once every unit future has resolved. A nil planned slot stays nil.
func (l *WorkflowLayer) collectResults(ctx context.Context, g *graph.Graph,
	planned []*graph.Workflow, futures map[string]*api.Future) []*api.CalculationLayerResult {

	results := make([]*api.CalculationLayerResult, 0, len(planned))

	for _, w := range planned {
		if w == nil {
			results = append(results, nil)
			continue
		}

		result := &api.CalculationLayerResult{
			PropertyID: w.PropertyID,
			CalculatedProperty: &api.PropertyRecord{
				ID:          w.PropertyID,
				SubstanceID: w.SubstanceID,
				Source:      l.name,
			},
		}

		finalFuture, ok := futures[w.FinalValue.Origin()]
		if !ok {
			result.Exception = api.NewStructuredError("no unit produced %s", w.FinalValue.String())
			results = append(results, result)
			continue
		}

		if _, err := finalFuture.Result(ctx); err != nil {
			result.Exception = api.NewStructuredError("%v", err)
			results = append(results, result)
			continue
		}

		finalNode, _ := g.Node(w.FinalValue.Origin())
		value, err := finalNode.Value(w.FinalValue)
		if err != nil {
			result.Exception = api.NewStructuredError("%v", err)
			results = append(results, result)
			continue
		}
		result.CalculatedProperty.Value = value

		if w.Uncertainty.Property() != "" {
			if node, found := g.Node(w.Uncertainty.Origin()); found {
				if u, err := node.Value(w.Uncertainty); err == nil {
					result.CalculatedProperty.Uncertainty = u
				}
			}
		}

		for _, addr := range w.OutputsToStore {
			node, found := g.Node(addr.Origin())
			if !found {
				continue
			}
			v, err := node.Value(addr)
			if err != nil {
				continue
			}
			if dir, ok := v.(string); ok && dir != "" {
				result.DataDirectories = append(result.DataDirectories, dir)
			}
		}

		results = append(results, result)
	}
	return results
}

// aggregateFromFuture is the single convergence point of the synchronous
// and asynchronous paths.
func (l *WorkflowLayer) aggregateFromFuture(ctx context.Context, barrier *api.Future,
	storage api.Storage, req *api.EstimationRequest, callback Callback) {

	value, err := barrier.Result(ctx)
	if err != nil {
		// The barrier itself failed; there is nothing per-property to
		// fold in, only the failure.
		req.Exceptions = append(req.Exceptions, api.NewStructuredError(
			"layer %s barrier failed: %v", l.name, err))
		callback(req)
		return
	}

	results, ok := value.([]*api.CalculationLayerResult)
	if !ok {
		req.Exceptions = append(req.Exceptions, api.NewStructuredError(
			"layer %s barrier returned %T", l.name, value))
		callback(req)
		return
	}

	l.aggregate(ctx, storage, req, results, callback)
}
