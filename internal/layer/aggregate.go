package layer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jpekkanen/estiva/pkg/api"
)

// aggregate folds a batch of per-property results into the shared
// request. Failures attributable to one result are recorded against the
// request and never abort the batch; the whole body runs under a guard so
// even an unexpected panic ends with the exception recorded and the
// callback invoked.
func (l *WorkflowLayer) aggregate(ctx context.Context, storage api.Storage,
	req *api.EstimationRequest, results []*api.CalculationLayerResult, callback Callback) {

	defer func() {
		if r := recover(); r != nil {
			req.Exceptions = append(req.Exceptions, api.NewStructuredError(
				"aggregation for layer %s panicked: %v\n%s", l.name, r, debug.Stack()))
		}
		callback(req)
	}()

	for _, result := range results {
		// A nil entry means the layer declined to compute this property.
		if result == nil {
			continue
		}
		if err := l.processResult(ctx, storage, req, result); err != nil {
			structured, ok := err.(*api.StructuredError)
			if !ok {
				structured = api.NewStructuredError("%v", err)
			}
			req.Exceptions = append(req.Exceptions, structured)
		}
	}
}

// processResult runs one result through matching, artifact storage, and
// routing. A returned error poisons only this result.
func (l *WorkflowLayer) processResult(ctx context.Context, storage api.Storage,
	req *api.EstimationRequest, result *api.CalculationLayerResult) error {

	if result.Exception != nil {
		req.Exceptions = append(req.Exceptions, result.Exception)
	} else if result.CalculatedProperty != nil && len(result.DataDirectories) > 0 {
		if err := l.storeDataDirectories(ctx, storage, req, result); err != nil {
			return err
		}
	}

	// Match against the queue by property id. Zero matches can
	// legitimately occur with queue-based re-delivery and is benign;
	// more than one is a data-integrity fault.
	matches := 0
	matchIndex := -1
	for i, queued := range req.QueuedProperties {
		if queued.ID == result.PropertyID {
			matches++
			matchIndex = i
		}
	}

	switch {
	case matches == 0:
		l.logger.Warn("result does not match any queued property",
			slog.String("request_id", req.ID),
			slog.String("property_id", result.PropertyID),
		)
		return nil
	case matches > 1:
		// Drop every matched entry before reporting the conflict, so a
		// later result claiming the same id matches nothing and is
		// skipped benignly instead of raising the conflict again.
		kept := req.QueuedProperties[:0]
		for _, queued := range req.QueuedProperties {
			if queued.ID != result.PropertyID {
				kept = append(kept, queued)
			}
		}
		req.QueuedProperties = kept
		return &api.PropertyMatchConflictError{PropertyID: result.PropertyID}
	}

	matched := req.QueuedProperties[matchIndex]
	req.QueuedProperties = append(
		req.QueuedProperties[:matchIndex],
		req.QueuedProperties[matchIndex+1:]...)

	if result.CalculatedProperty == nil && result.Exception == nil {
		l.logger.Warn("result carries neither a value nor an exception",
			slog.String("request_id", req.ID),
			slog.String("property_id", result.PropertyID),
		)
		return nil
	}

	// Route by substance. A property record is built even for failed
	// attempts, so both branches key the same way; the queued record is
	// the fallback when the layer could not construct one.
	routed := matched
	if result.CalculatedProperty != nil {
		routed = *result.CalculatedProperty
	}

	if result.Exception == nil {
		req.EstimatedProperties[routed.SubstanceID] =
			append(req.EstimatedProperties[routed.SubstanceID], routed)
	} else {
		req.UnsuccessfulProperties[routed.SubstanceID] =
			append(req.UnsuccessfulProperties[routed.SubstanceID], routed)
	}
	return nil
}

// storeDataDirectories persists each data directory of a successful
// result. A missing directory or manifest is an expected condition with
// queue re-delivery; it is logged and skipped, never fatal. Manifests
// without a force field id inherit the request's before storage.
func (l *WorkflowLayer) storeDataDirectories(ctx context.Context, storage api.Storage,
	req *api.EstimationRequest, result *api.CalculationLayerResult) error {

	substanceID := result.CalculatedProperty.SubstanceID

	for _, directory := range result.DataDirectories {
		if !api.HasManifest(directory) {
			l.logger.Warn("data directory missing or lacks a manifest; skipping",
				slog.String("request_id", req.ID),
				slog.String("property_id", result.PropertyID),
				slog.String("directory", directory),
			)
			continue
		}

		manifest, err := api.LoadManifest(directory)
		if err != nil {
			return fmt.Errorf("load manifest in %s: %w", directory, err)
		}
		if manifest.ForceFieldID == "" {
			manifest.ForceFieldID = req.ForceFieldID
			if err := manifest.Save(directory); err != nil {
				return fmt.Errorf("backfill manifest in %s: %w", directory, err)
			}
		}

		if _, err := storage.StoreArtifact(ctx, substanceID, directory); err != nil {
			return fmt.Errorf("store %s: %w", directory, err)
		}
	}
	return nil
}
