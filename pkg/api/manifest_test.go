package api

import (
	"path/filepath"
	"testing"
)

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	src := &DataManifest{SubstanceID: "O{1.0}", ForceFieldID: "ff-14"}
	if err := src.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if loaded.SubstanceID != "O{1.0}" || loaded.ForceFieldID != "ff-14" {
		t.Fatalf("unexpected manifest %+v", loaded)
	}
}

func TestHasManifest(t *testing.T) {
	dir := t.TempDir()

	if HasManifest(dir) {
		t.Fatalf("empty directory reported as having a manifest")
	}
	if HasManifest(filepath.Join(dir, "missing")) {
		t.Fatalf("missing directory reported as having a manifest")
	}

	m := &DataManifest{SubstanceID: "CO"}
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !HasManifest(dir) {
		t.Fatalf("directory with manifest not detected")
	}
}

func TestLoadManifestMissingDirectory(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}
