// Package api defines the public contracts of the estiva workflow core.
//
// The central abstraction is the Protocol: one addressable unit of work in
// a directed workflow graph. Protocols declare a fixed set of inputs and
// outputs; inputs hold either literal values or PathAddress references to
// the outputs of other protocols, and those references are the edges of
// the graph.
//
// # Addresses
//
// A PathAddress points at a single property of a single node, with
// optional accessors reaching inside the property value:
//
//	addr, _ := api.ParsePathAddress("build_coordinates/coordinate_file")
//	nested := api.NewPathAddress("statistics").Key("potential_energy").Index(0)
//
// Addresses are immutable values; all rewriting operations (binding,
// instance tagging, retargeting after a merge) return copies.
//
// # Merging
//
// Structurally identical protocols are collapsed before execution so
// expensive work runs once. Each input's MergePolicy declares how the
// collapse treats it: ExactlyEqual inputs gate whether a merge is allowed
// at all, Smallest/Greatest inputs are reconciled onto the survivor, and
// Unmanaged inputs are the graph builder's problem.
//
// # Execution and aggregation
//
// Finished graphs are dispatched to a Backend, which returns one Future
// per submitted unit. A calculation layer bundles those futures behind a
// single barrier future, waits on it (or registers a completion listener),
// and aggregates the per-property CalculationLayerResult values into the
// shared EstimationRequest. Failures attributable to one property are
// recorded on the request and never take the batch down.
//
// Implementations of the Backend and Storage contracts live in the
// internal packages and are re-exported from the module root.
package api
