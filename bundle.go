package estiva

import (
	"database/sql"

	"github.com/jpekkanen/estiva/internal/backend"
	"github.com/jpekkanen/estiva/internal/engine"
	"github.com/jpekkanen/estiva/internal/storage"
	"github.com/jpekkanen/estiva/pkg/api"
)

// LocalBundle wires together a Coordinator, an in-process execution
// backend, and directory-based artifact storage. It is the easiest way to
// run estimations on a single machine.
type LocalBundle struct {
	Coordinator *Coordinator
	Backend     *LocalBackend
	Storage     Storage
}

// NewLocalBundle constructs an in-process Coordinator + backend + storage
// combo. The artifact index is kept in the provided SQLite database.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:estiva.db?_journal=WAL")
//	bundle, err := estiva.NewLocalBundle(db, cfg, simulationLayer)
//	id, err := bundle.Coordinator.Submit(ctx, forceFieldID, properties)
func NewLocalBundle(db *sql.DB, cfg Config, layers ...Layer) (*LocalBundle, error) {
	return NewLocalBundleWithObserver(db, cfg, nil, layers...)
}

// NewLocalBundleWithObserver is NewLocalBundle with a lifecycle observer
// attached to the coordinator.
func NewLocalBundleWithObserver(db *sql.DB, cfg Config, obs Observer, layers ...Layer) (*LocalBundle, error) {
	cfg = cfg.withDefaults()

	store, err := storage.NewDirectoryStore(cfg.StorageRoot, db)
	if err != nil {
		return nil, err
	}

	b := backend.NewLocal(backend.Options{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
		Resources: api.ComputeResources{
			Threads: cfg.Threads,
			GPUs:    cfg.GPUs,
		},
	})

	coordinator, err := engine.New(engine.Options{
		Backend:  b,
		Storage:  store,
		WorkDir:  cfg.WorkDir,
		Layers:   layers,
		Observer: obs,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	return &LocalBundle{
		Coordinator: coordinator,
		Backend:     b,
		Storage:     store,
	}, nil
}

// Close stops the backend's worker pool. Submitted requests should be
// waited on first.
func (b *LocalBundle) Close() error {
	return b.Backend.Close()
}
