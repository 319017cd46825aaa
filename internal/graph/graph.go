package graph

import (
	"fmt"

	"github.com/jpekkanen/estiva/pkg/api"
)

// Graph folds workflows into a shared deduplicated node set. Each added
// workflow is processed in dependency order; every node is either merged
// into a structurally identical survivor already in the graph or accepted
// as a new node. References held by later nodes and by the workflow
// itself are rewritten to follow each merge.
type Graph struct {
	nodes  []api.Protocol
	byID   map[string]api.Protocol
	byType map[string][]api.Protocol

	// replaced maps a merged-away node id to the survivor that absorbed
	// it. Chains can form when a survivor is itself merged later.
	replaced map[string]string

	workflows []*Workflow
}

func NewGraph() *Graph {
	return &Graph{
		byID:     make(map[string]api.Protocol),
		byType:   make(map[string][]api.Protocol),
		replaced: make(map[string]string),
	}
}

// AddWorkflow folds a workflow's nodes into the graph. The workflow must
// already be instance-tagged so its node ids cannot collide with ids from
// other workflows. Cycles are rejected before any node is accepted.
func (g *Graph) AddWorkflow(w *Workflow) error {
	ordered, err := topologicalOrder(w.Protocols)
	if err != nil {
		return fmt.Errorf("add workflow for %s: %w", w.PropertyID, err)
	}

	for _, p := range w.Protocols {
		if _, exists := g.byID[p.ID()]; exists {
			return fmt.Errorf("add workflow for %s: node id %q already in graph", w.PropertyID, p.ID())
		}
	}

	for i, node := range ordered {
		survivor := g.findSurvivor(node)
		if survivor == nil {
			g.accept(node)
			continue
		}

		substitutions, err := survivor.Merge(node)
		if err != nil {
			return fmt.Errorf("add workflow for %s: %w", w.PropertyID, err)
		}

		g.recordReplacement(node.ID(), survivor.ID())
		retargetRemaining(ordered[i+1:], node.ID(), survivor.ID())
		w.retarget(node.ID(), survivor.ID())

		for oldID, newID := range substitutions {
			g.recordReplacement(oldID, newID)
			retargetRemaining(ordered[i+1:], oldID, newID)
			w.retarget(oldID, newID)
		}
	}

	g.workflows = append(g.workflows, w)
	return nil
}

// findSurvivor scans previously accepted nodes of the same declared type,
// in acceptance order, for one that can absorb node. First match wins.
//
// CanMerge only compares locally-scoped values; references into the rest
// of the graph are compared here, after upstream merges have already
// rewritten them. Two nodes whose references resolve to the same
// survivors are structurally identical upstream.
func (g *Graph) findSurvivor(node api.Protocol) api.Protocol {
	for _, candidate := range g.byType[node.TypeName()] {
		if candidate.CanMerge(node) && referencesCompatible(candidate, node) {
			return candidate
		}
	}
	return nil
}

func referencesCompatible(survivor, node api.Protocol) bool {
	for _, spec := range node.Inputs() {
		nodeValue, err := node.Value(api.NewPathAddress(spec.Name))
		if err != nil {
			return false
		}
		if !holdsReference(nodeValue) {
			continue
		}
		if addr, ok := nodeValue.(api.PathAddress); ok && addr.Origin() == node.ID() {
			// Self references survive the merge as the survivor's own.
			continue
		}
		survivorValue, err := survivor.Value(api.NewPathAddress(spec.Name))
		if err != nil {
			return false
		}
		if !referencesEqual(nodeValue, survivorValue) {
			return false
		}
	}
	return true
}

func holdsReference(value any) bool {
	switch v := value.(type) {
	case api.PathAddress:
		return !v.IsLocal()
	case []any:
		for _, elem := range v {
			if holdsReference(elem) {
				return true
			}
		}
	case map[string]any:
		for _, elem := range v {
			if holdsReference(elem) {
				return true
			}
		}
	}
	return false
}

func referencesEqual(a, b any) bool {
	switch av := a.(type) {
	case api.PathAddress:
		bv, ok := b.(api.PathAddress)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !referencesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, present := bv[k]
			if !present || !referencesEqual(elem, other) {
				return false
			}
		}
		return true
	default:
		// Non-reference leaves are CanMerge's concern; treat as
		// compatible here.
		return true
	}
}

func (g *Graph) accept(node api.Protocol) {
	g.nodes = append(g.nodes, node)
	g.byID[node.ID()] = node
	g.byType[node.TypeName()] = append(g.byType[node.TypeName()], node)
}

func (g *Graph) recordReplacement(oldID, newID string) {
	// Rewrite any chain that ended at oldID so lookups stay one hop.
	for from, to := range g.replaced {
		if to == oldID {
			g.replaced[from] = newID
		}
	}
	g.replaced[oldID] = newID
}

func retargetRemaining(nodes []api.Protocol, oldID, newID string) {
	for _, p := range nodes {
		p.Retarget(oldID, newID)
	}
}

// Protocols returns the accepted nodes in acceptance order.
func (g *Graph) Protocols() []api.Protocol {
	return append([]api.Protocol(nil), g.nodes...)
}

// Workflows returns the folded workflows with their references rewritten
// to the surviving node ids.
func (g *Graph) Workflows() []*Workflow {
	return append([]*Workflow(nil), g.workflows...)
}

// Node looks up an accepted node, following merge replacements: asking
// for a merged-away id returns its survivor.
func (g *Graph) Node(id string) (api.Protocol, bool) {
	if survivor, ok := g.replaced[id]; ok {
		id = survivor
	}
	p, ok := g.byID[id]
	return p, ok
}

// ExecutionOrder returns every accepted node sorted leaf first, ready for
// leaf-to-root dispatch.
func (g *Graph) ExecutionOrder() ([]api.Protocol, error) {
	return topologicalOrder(g.nodes)
}
