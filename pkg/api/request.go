package api

import "fmt"

// StructuredError is the expected, domain-reported failure shape returned
// by protocol executions and recorded against an estimation request. It
// intentionally carries the directory the failing work ran in so remote
// failures can be inspected after the fact.
type StructuredError struct {
	Message   string `json:"message"`
	Directory string `json:"directory,omitempty"`
}

func (e *StructuredError) Error() string {
	if e.Directory == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (directory %s)", e.Message, e.Directory)
}

// NewStructuredError builds a StructuredError with a formatted message.
func NewStructuredError(format string, args ...any) *StructuredError {
	return &StructuredError{Message: fmt.Sprintf(format, args...)}
}

// PropertyRecord is the minimal view of a physical property this core
// needs: an identity, the substance it belongs to, and an opaque value.
// The full typed property model is a domain collaborator.
type PropertyRecord struct {
	ID          string `json:"id"`
	SubstanceID string `json:"substance_id"`

	Value       any `json:"value,omitempty"`
	Uncertainty any `json:"uncertainty,omitempty"`

	// Source names the calculation layer that produced the value.
	Source string `json:"source,omitempty"`
}

// CalculationLayerResult is the per-property output of one calculation
// layer. At most one of CalculatedProperty / Exception carries a
// meaningful value; both absent means the layer computed nothing for this
// property, which is benign.
type CalculationLayerResult struct {
	PropertyID string

	CalculatedProperty *PropertyRecord
	Exception          *StructuredError

	// DataDirectories lists directories of raw calculation data that
	// should be persisted via the storage backend once the result has
	// been aggregated.
	DataDirectories []string
}

// EstimationRequest is the shared record one client request is aggregated
// into. It is created once per request, mutated incrementally as each
// calculation layer returns, and finally turned into the response.
//
// The request is exclusively owned by the coordinator driving the layer
// sequence; a calculation layer borrows it for the duration of a single
// aggregation pass. Only one aggregation per request may be in flight at a
// time.
type EstimationRequest struct {
	ID           string
	ForceFieldID string

	// QueuedProperties still await estimation by some layer.
	QueuedProperties []PropertyRecord

	// EstimatedProperties collects successful estimates per substance id.
	EstimatedProperties map[string][]PropertyRecord

	// UnsuccessfulProperties collects properties every layer gave up on,
	// per substance id.
	UnsuccessfulProperties map[string][]PropertyRecord

	// Exceptions accumulates every failure recorded while serving the
	// request. A populated list never prevents the successful subset from
	// being returned.
	Exceptions []*StructuredError
}

// NewEstimationRequest creates a request for the given properties.
func NewEstimationRequest(id, forceFieldID string, properties []PropertyRecord) *EstimationRequest {
	return &EstimationRequest{
		ID:                     id,
		ForceFieldID:           forceFieldID,
		QueuedProperties:       append([]PropertyRecord(nil), properties...),
		EstimatedProperties:    make(map[string][]PropertyRecord),
		UnsuccessfulProperties: make(map[string][]PropertyRecord),
	}
}
