// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package walker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractAssetPointerMap(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head><script>
var something = 1;
var assetPointerMap = {"file-service://abc123": "photo.png", "file-service://def456": "clip.mp4"};
</script></head><body></body></html>`

	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "conversation.html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractAssetPointerMap(htmlPath)
	if err != nil {
		t.Fatalf("ExtractAssetPointerMap: %v", err)
	}
	if got["file-service://abc123"] != "photo.png" {
		t.Errorf("photo pointer = %q, want photo.png", got["file-service://abc123"])
	}
	if got["file-service://def456"] != "clip.mp4" {
		t.Errorf("clip pointer = %q, want clip.mp4", got["file-service://def456"])
	}
}

func TestExtractAssetPointerMapMissing(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "conversation.html")
	if err := os.WriteFile(htmlPath, []byte(`<html><body>no map here</body></html>`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractAssetPointerMap(htmlPath)
	if err != nil {
		t.Fatalf("ExtractAssetPointerMap: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestMediaManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "media_manifest.json")
	if err := os.WriteFile(path, []byte(`{"display-name.png": "real-file-abc.png"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := MediaManifest(path)
	if err != nil {
		t.Fatalf("MediaManifest: %v", err)
	}
	if got["display-name.png"] != "real-file-abc.png" {
		t.Errorf("got %v", got)
	}
}

func TestMediaManifestAbsent(t *testing.T) {
	got, err := MediaManifest(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("MediaManifest: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map for missing manifest, got %v", got)
	}
}
