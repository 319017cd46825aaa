// Package graph assembles protocol workflows into a shared, deduplicated
// execution graph. Structurally identical sub-graphs across workflows are
// collapsed before anything is submitted for expensive execution.
package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jpekkanen/estiva/pkg/api"
)

// Workflow is one property's ordered list of protocol nodes plus the
// address of the output that carries the final computed value. Node ids
// are unique within the workflow; instancing for a concrete job tags
// every id with a fresh uuid so two jobs built from the same template
// never collide.
type Workflow struct {
	// InstanceID is the per-job tag applied by ApplyInstanceTag, empty
	// until then.
	InstanceID string

	// PropertyID and SubstanceID identify what this workflow estimates.
	PropertyID  string
	SubstanceID string

	Protocols []api.Protocol

	// FinalValue addresses the output holding the estimated value once
	// the workflow has run.
	FinalValue api.PathAddress

	// Uncertainty optionally addresses the output holding the value's
	// uncertainty. The zero address means none.
	Uncertainty api.PathAddress

	// OutputsToStore addresses outputs whose values name data
	// directories to persist after a successful run.
	OutputsToStore []api.PathAddress
}

// NewWorkflow validates and wraps an ordered protocol list. Node ids must
// be unique and every dependency must point at another node in the list.
func NewWorkflow(propertyID, substanceID string, protocols []api.Protocol, finalValue api.PathAddress) (*Workflow, error) {
	ids := make(map[string]struct{}, len(protocols))
	for _, p := range protocols {
		if p.ID() == "" {
			return nil, fmt.Errorf("workflow for %s: protocol with empty id", propertyID)
		}
		if _, dup := ids[p.ID()]; dup {
			return nil, fmt.Errorf("workflow for %s: duplicate protocol id %q", propertyID, p.ID())
		}
		ids[p.ID()] = struct{}{}
	}

	for _, p := range protocols {
		for _, dep := range p.Dependencies() {
			if _, ok := ids[dep.Origin()]; !ok {
				return nil, fmt.Errorf("workflow for %s: protocol %q references unknown node %q",
					propertyID, p.ID(), dep.Origin())
			}
		}
	}

	if _, ok := ids[finalValue.Origin()]; !ok {
		return nil, fmt.Errorf("workflow for %s: final value references unknown node %q",
			propertyID, finalValue.Origin())
	}

	return &Workflow{
		PropertyID:  propertyID,
		SubstanceID: substanceID,
		Protocols:   protocols,
		FinalValue:  finalValue,
	}, nil
}

// ApplyInstanceTag tags every node id and every address in the workflow
// with a fresh uuid, making the workflow safe to fold into a graph next
// to other instances built from the same template. Calling it twice
// returns an error rather than double-tagging.
func (w *Workflow) ApplyInstanceTag() error {
	if w.InstanceID != "" {
		return fmt.Errorf("workflow for %s: already tagged with %s", w.PropertyID, w.InstanceID)
	}

	tag := uuid.NewString()
	w.InstanceID = tag

	for _, p := range w.Protocols {
		p.AppendInstanceTag(tag)
	}
	w.FinalValue = w.FinalValue.AppendInstanceTag(tag)
	if w.Uncertainty.Property() != "" {
		w.Uncertainty = w.Uncertainty.AppendInstanceTag(tag)
	}
	for i, addr := range w.OutputsToStore {
		w.OutputsToStore[i] = addr.AppendInstanceTag(tag)
	}
	return nil
}

// retarget rewrites all external references the workflow holds after one
// of its nodes was merged away.
func (w *Workflow) retarget(oldID, newID string) {
	w.FinalValue = w.FinalValue.Retarget(oldID, newID)
	if w.Uncertainty.Property() != "" {
		w.Uncertainty = w.Uncertainty.Retarget(oldID, newID)
	}
	for i, addr := range w.OutputsToStore {
		w.OutputsToStore[i] = addr.Retarget(oldID, newID)
	}
}

// topologicalOrder returns protocols sorted leaf first, so every node
// appears after all of its dependencies. Within a layer the original
// list order is preserved, which keeps merge results deterministic. A
// dependency cycle is an error.
func topologicalOrder(protocols []api.Protocol) ([]api.Protocol, error) {
	index := make(map[string]api.Protocol, len(protocols))
	for _, p := range protocols {
		index[p.ID()] = p
	}

	indegree := make(map[string]int, len(protocols))
	dependants := make(map[string][]string, len(protocols))
	for _, p := range protocols {
		seen := make(map[string]struct{})
		for _, dep := range p.Dependencies() {
			origin := dep.Origin()
			if _, ok := index[origin]; !ok {
				continue
			}
			if _, dup := seen[origin]; dup {
				continue
			}
			seen[origin] = struct{}{}
			indegree[p.ID()]++
			dependants[origin] = append(dependants[origin], p.ID())
		}
	}

	var ready []api.Protocol
	for _, p := range protocols {
		if indegree[p.ID()] == 0 {
			ready = append(ready, p)
		}
	}

	ordered := make([]api.Protocol, 0, len(protocols))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, id := range dependants[next.ID()] {
			indegree[id]--
			if indegree[id] == 0 {
				ready = append(ready, index[id])
			}
		}
	}

	if len(ordered) != len(protocols) {
		var stuck []string
		for id, n := range indegree {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("dependency cycle involving %v", stuck)
	}
	return ordered, nil
}
