package asset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAnnotationsGz(t *testing.T, path string, annotations map[string]any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := gzip.NewWriter(f)
	require.NoError(t, json.NewEncoder(w).Encode(annotations))
	require.NoError(t, w.Close())
}

func TestResolveAnnotations(t *testing.T) {
	dir := t.TempDir()

	// A plain file applies to every asset.
	file := filepath.Join(dir, "all.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	got, err := ResolveAnnotations(file, "chair_42")
	require.NoError(t, err)
	assert.Equal(t, file, got)

	// A directory is probed per asset.
	annDir := filepath.Join(dir, "annotations")
	perAsset := filepath.Join(annDir, "chair_42.json")
	require.NoError(t, os.MkdirAll(annDir, 0o755))
	require.NoError(t, os.WriteFile(perAsset, []byte("{}"), 0o644))
	got, err = ResolveAnnotations(annDir, "chair_42")
	require.NoError(t, err)
	assert.Equal(t, perAsset, got)

	nested := filepath.Join(annDir, "table_7", "annotations.json.gz")
	writeAnnotationsGz(t, nested, map[string]any{"description": "a table"})
	got, err = ResolveAnnotations(annDir, "table_7")
	require.NoError(t, err)
	assert.Equal(t, nested, got)

	_, err = ResolveAnnotations(annDir, "lamp_9")
	assert.Error(t, err)

	// No annotations configured is not an error.
	got, err = ResolveAnnotations("", "chair_42")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAttachAnnotations(t *testing.T) {
	dir := t.TempDir()
	writeAnnotationsGz(t, filepath.Join(dir, "annotations.json.gz"),
		map[string]any{"description": "a red chair"})

	doc := Document{}
	require.NoError(t, AttachAnnotations(doc, dir))
	ann, ok := doc["annotations"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a red chair", ann["description"])

	// An existing annotations block is not overwritten.
	doc = Document{"annotations": map[string]any{"description": "original"}}
	require.NoError(t, AttachAnnotations(doc, dir))
	assert.Equal(t, "original", doc["annotations"].(map[string]any)["description"])

	// A missing file is a no-op.
	doc = Document{}
	require.NoError(t, AttachAnnotations(doc, t.TempDir()))
	_, ok = doc["annotations"]
	assert.False(t, ok)
}
