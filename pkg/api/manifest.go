package api

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ManifestFileName is the name of the manifest file every storable data
// directory must contain.
const ManifestFileName = "data.json"

// DataManifest is the small interchange file written into each calculation
// data directory. The aggregator backfills ForceFieldID from the request
// when a manifest does not already carry one.
type DataManifest struct {
	SubstanceID  string `json:"substance_id"`
	ForceFieldID string `json:"force_field_id,omitempty"`
}

// LoadManifest reads the manifest from a data directory.
func LoadManifest(directory string) (*DataManifest, error) {
	data, err := os.ReadFile(filepath.Join(directory, ManifestFileName))
	if err != nil {
		return nil, err
	}
	var m DataManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the manifest back into a data directory.
func (m *DataManifest) Save(directory string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(directory, ManifestFileName), data, 0o644)
}

// HasManifest reports whether directory exists and contains a manifest
// file. Missing artifacts are an expected condition, not an error.
func HasManifest(directory string) bool {
	if info, err := os.Stat(directory); err != nil || !info.IsDir() {
		return false
	}
	if info, err := os.Stat(filepath.Join(directory, ManifestFileName)); err != nil || info.IsDir() {
		return false
	}
	return true
}
