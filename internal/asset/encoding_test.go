package asset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		"name": "chair_42",
		"vertices": []any{
			map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
			map[string]any{"x": -1.0, "y": 0.0, "z": 0.5},
		},
		"albedoTexturePath": "albedo.png",
		"yRotOffset":        12.5,
	}
}

func TestSaveLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := SavePathFor(dir, "chair_42", ".json")
	require.Equal(t, filepath.Join(dir, "chair_42.json"), path)

	require.NoError(t, Save(sampleDocument(), path))

	doc, err := Load(dir, "chair_42")
	require.NoError(t, err)
	assert.Equal(t, "chair_42", doc["name"])
	assert.Equal(t, 12.5, doc["yRotOffset"])

	verts, err := doc.Vertices()
	require.NoError(t, err)
	require.Len(t, verts, 2)
	assert.Equal(t, 3.0, verts[0].Z)
}

func TestSaveLoadCompressedMsgpack(t *testing.T) {
	dir := t.TempDir()
	path := SavePathFor(dir, "chair_42", ".msgpack.gz")

	require.NoError(t, Save(sampleDocument(), path))

	doc, err := LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, "chair_42", doc["name"])

	// msgpack decodes numbers to narrower types; vertex extraction must
	// still work.
	verts, err := doc.Vertices()
	require.NoError(t, err)
	require.Len(t, verts, 2)
	assert.Equal(t, -1.0, verts[1].X)
}

func TestExistingDocumentPathProbing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(sampleDocument(), SavePathFor(dir, "chair_42", ".json.gz")))

	path, err := ExistingDocumentPath(dir, "chair_42", "")
	require.NoError(t, err)
	assert.Equal(t, SavePathFor(dir, "chair_42", ".json.gz"), path)

	// Restricting to a different encoding misses.
	_, err = ExistingDocumentPath(dir, "chair_42", ".msgpack")
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = Load(dir, "table_7")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestSaveOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := SavePathFor(dir, "chair_42", ".json")

	require.NoError(t, Save(Document{"rev": 1.0}, path))
	require.NoError(t, Save(Document{"rev": 2.0}, path))

	doc, err := LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, doc["rev"])
}

func TestSaveRejectsUnknownEncoding(t *testing.T) {
	err := Save(sampleDocument(), filepath.Join(t.TempDir(), "chair_42.pkl"))
	assert.Error(t, err)
}
