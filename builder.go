package estiva

import (
	"fmt"

	"github.com/jpekkanen/estiva/internal/graph"
	"github.com/jpekkanen/estiva/pkg/api"
)

// WorkflowBuilder provides a fluent API for assembling the workflow that
// estimates one property:
//
//	w, err := estiva.NewWorkflowBuilder("density-298K", "O{1.0}").
//	    Protocol(buildCoordinates).
//	    Protocol(runSimulation).
//	    Protocol(extractDensity).
//	    FinalValue("value", "extract_density").
//	    StoreOutput("data_directory", "run_simulation").
//	    Build()
type WorkflowBuilder struct {
	propertyID  string
	substanceID string
	protocols   []api.Protocol

	finalValue  api.PathAddress
	uncertainty api.PathAddress
	store       []api.PathAddress
}

// NewWorkflowBuilder creates a builder for the given property.
func NewWorkflowBuilder(propertyID, substanceID string) *WorkflowBuilder {
	return &WorkflowBuilder{
		propertyID:  propertyID,
		substanceID: substanceID,
	}
}

// Protocol appends a node to the workflow. Nodes are dispatched in
// dependency order, so append order only breaks ties.
func (b *WorkflowBuilder) Protocol(p Protocol) *WorkflowBuilder {
	if p == nil {
		panic("estiva: nil protocol")
	}
	b.protocols = append(b.protocols, p)
	return b
}

// FromSchema instantiates a node from a schema via the registry and
// appends it.
func (b *WorkflowBuilder) FromSchema(reg *ProtocolRegistry, schema *ProtocolSchema) (*WorkflowBuilder, error) {
	p, err := reg.FromSchema(schema)
	if err != nil {
		return b, fmt.Errorf("build workflow for %s: %w", b.propertyID, err)
	}
	return b.Protocol(p), nil
}

// FinalValue names the output carrying the estimated value.
func (b *WorkflowBuilder) FinalValue(property, nodeID string) *WorkflowBuilder {
	b.finalValue = api.NewPathAddress(property, nodeID)
	return b
}

// Uncertainty names the output carrying the value's uncertainty.
func (b *WorkflowBuilder) Uncertainty(property, nodeID string) *WorkflowBuilder {
	b.uncertainty = api.NewPathAddress(property, nodeID)
	return b
}

// StoreOutput marks an output whose value names a data directory to
// persist after a successful run.
func (b *WorkflowBuilder) StoreOutput(property, nodeID string) *WorkflowBuilder {
	b.store = append(b.store, api.NewPathAddress(property, nodeID))
	return b
}

// Build validates the assembled workflow. The result is untagged; layers
// tag it per job before folding it into a graph.
func (b *WorkflowBuilder) Build() (*Workflow, error) {
	if len(b.protocols) == 0 {
		return nil, fmt.Errorf("build workflow for %s: no protocols", b.propertyID)
	}
	if b.finalValue.Property() == "" {
		return nil, fmt.Errorf("build workflow for %s: no final value", b.propertyID)
	}

	w, err := graph.NewWorkflow(b.propertyID, b.substanceID, b.protocols, b.finalValue)
	if err != nil {
		return nil, err
	}
	w.Uncertainty = b.uncertainty
	w.OutputsToStore = append([]api.PathAddress(nil), b.store...)
	return w, nil
}
