// Package storage implements the artifact storage contract: calculation
// data directories copied under a managed root, with an index mapping
// substance ids to stored artifacts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jpekkanen/estiva/pkg/api"
)

// DirectoryStore copies stored data directories under a root path and
// keeps the substance index in SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type DirectoryStore struct {
	root string
	db   *sql.DB
}

var _ api.Storage = (*DirectoryStore)(nil)

// NewDirectoryStore initializes the required schema in the given database
// and returns a new DirectoryStore rooted at root.
func NewDirectoryStore(root string, db *sql.DB) (*DirectoryStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	s := &DirectoryStore{root: root, db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DirectoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			substance_id TEXT NOT NULL,
			force_field_id TEXT,
			path TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_substance
			ON artifacts (substance_id);`,
	)
	return err
}

func (s *DirectoryStore) StoreArtifact(ctx context.Context, substanceID, directory string) (api.StoredArtifact, error) {
	manifest, err := api.LoadManifest(directory)
	if err != nil {
		return api.StoredArtifact{}, fmt.Errorf("read manifest in %s: %w", directory, err)
	}

	id := uuid.NewString()
	dest := filepath.Join(s.root, id)
	if err := copyDirectory(directory, dest); err != nil {
		return api.StoredArtifact{}, fmt.Errorf("copy %s: %w", directory, err)
	}

	artifact := api.StoredArtifact{
		SubstanceID:  substanceID,
		ForceFieldID: manifest.ForceFieldID,
		Path:         dest,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, substance_id, force_field_id, path)
		VALUES (?, ?, ?, ?)`,
		id,
		artifact.SubstanceID,
		artifact.ForceFieldID,
		artifact.Path,
	)
	if err != nil {
		return api.StoredArtifact{}, err
	}
	return artifact, nil
}

func (s *DirectoryStore) ArtifactsFor(ctx context.Context, substanceID string) ([]api.StoredArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT substance_id, force_field_id, path
		FROM artifacts
		WHERE substance_id = ?
		ORDER BY path`,
		substanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []api.StoredArtifact
	for rows.Next() {
		var a api.StoredArtifact
		var forceField sql.NullString
		if err := rows.Scan(&a.SubstanceID, &forceField, &a.Path); err != nil {
			return nil, err
		}
		a.ForceFieldID = forceField.String
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// copyDirectory recursively copies src into dest. dest must not exist.
func copyDirectory(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
