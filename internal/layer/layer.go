// Package layer implements calculation layers: a layer turns the queued
// properties of an estimation request into a deduplicated protocol graph,
// submits it to an execution backend, and folds the results back into the
// request once every unit has finished.
package layer

import (
	"context"

	"github.com/jpekkanen/estiva/pkg/api"
)

// Callback is invoked exactly once when a scheduled layer has aggregated
// its results into the request, successfully or not.
type Callback func(*api.EstimationRequest)

// Layer is one named estimation strategy. A coordinator runs a request
// through its layers in order; each layer takes whatever is still queued
// and attempts to estimate it.
type Layer interface {
	Name() string

	// Schedule submits the layer's work for every queued property of req
	// and arranges for aggregation to run once the whole submission has
	// completed. In synchronous mode it blocks until aggregation is done;
	// otherwise it returns after submission and aggregation runs from a
	// completion listener. Submission failure is returned as a hard
	// error and the callback is not invoked.
	Schedule(ctx context.Context, backend api.Backend, storage api.Storage,
		workDir string, req *api.EstimationRequest, callback Callback, synchronous bool) error
}
