package api

import "context"

// StoredArtifact describes one persisted calculation data directory.
type StoredArtifact struct {
	SubstanceID  string
	ForceFieldID string
	Path         string
}

// Storage is the artifact storage contract this core consumes. The
// aggregator hands it finished calculation data directories keyed by the
// substance they belong to.
type Storage interface {
	// StoreArtifact persists the given data directory for a substance and
	// returns the stored location.
	StoreArtifact(ctx context.Context, substanceID, directory string) (StoredArtifact, error)

	// ArtifactsFor lists everything stored for a substance.
	ArtifactsFor(ctx context.Context, substanceID string) ([]StoredArtifact, error)
}
