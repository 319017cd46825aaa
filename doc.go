// Package estiva is an embeddable coordination core for multi-step
// computational workflows: directed graphs of typed, addressable
// processing nodes whose outputs feed other nodes' inputs.
//
// Estiva does not perform any domain computation itself. It addresses
// values inside a growing graph of nodes, collapses structurally
// identical sub-graphs before they are submitted for expensive
// execution, dispatches the surviving nodes to an execution backend, and
// folds partial, possibly-failing results back into a shared request
// record without ever taking the whole service down with them.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Protocol
//  2. PathAddress
//  3. Workflow and Graph
//  4. Layer
//  5. Coordinator
//
// # Protocol
//
// A Protocol is one addressable unit of work. Concrete protocols embed
// ProtocolBase, declare their inputs and outputs statically, and
// implement Execute with the domain computation:
//
//	type buildCoordinates struct {
//	    *estiva.ProtocolBase
//	}
//
//	func newBuildCoordinates(id string) *buildCoordinates {
//	    return &buildCoordinates{ProtocolBase: estiva.NewProtocolBase(
//	        id, "BuildCoordinates",
//	        []estiva.InputSpec{
//	            {Name: "substance", Policy: estiva.MergeExactlyEqual},
//	            {Name: "max_molecules", Policy: estiva.MergeGreatest, Default: 1000},
//	        },
//	        []estiva.OutputSpec{{Name: "coordinates"}},
//	    )}
//	}
//
// Each input carries a merge policy. When two nodes of the same type are
// structurally identical, the graph collapses them into one: inputs
// tagged ExactlyEqual gate the merge, Smallest and Greatest reconcile
// differing values onto the survivor, and Unmanaged inputs are left to
// the graph construction logic.
//
// # PathAddress
//
// Inputs hold either literal values or PathAddress references to other
// nodes' outputs; references define the edges of the graph. An address
// is an immutable node-id chain plus a property name plus optional
// nested accessors, with a canonical string form:
//
//	addr := estiva.NewPathAddress("coordinates", "build_coordinates")
//	nested := estiva.NewPathAddress("observables", "extract").Key("density").Index(0)
//
// # Workflow and Graph
//
// A Workflow is the ordered node list estimating one property. Folding
// workflows into a Graph deduplicates shared sub-graphs and rewrites
// every reference that pointed at a removed node.
//
// # Layer
//
// A calculation Layer turns the queued properties of a request into
// workflows (via a Planner), submits the deduplicated graph to an
// execution backend leaf to root, and aggregates results once the whole
// submission has finished. Aggregation is guarded: a failure anywhere is
// recorded against the request, never raised out of the service.
//
// # Coordinator
//
// The Coordinator owns estimation requests and drives each through the
// configured layer sequence, one layer in flight per request at a time.
// Properties a layer cannot estimate stay queued for the next layer;
// whatever is left at the end is reported as unsuccessful alongside the
// successful subset.
//
// # LocalBundle
//
// LocalBundle wires a Coordinator, the in-process execution backend, and
// directory-based artifact storage into a single helper for development,
// testing, and single-machine deployments.
//
// For examples, see the package tests.
package estiva
