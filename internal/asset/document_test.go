package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerticesHandlesInterfaceKeys(t *testing.T) {
	// msgpack decodes nested maps with interface{} keys.
	doc := Document{
		"vertices": []any{
			map[any]any{"x": float32(1.5), "y": int8(2), "z": uint16(3)},
		},
	}
	verts, err := doc.Vertices()
	require.NoError(t, err)
	require.Len(t, verts, 1)
	assert.Equal(t, 1.5, verts[0].X)
	assert.Equal(t, 2.0, verts[0].Y)
	assert.Equal(t, 3.0, verts[0].Z)
}

func TestVerticesErrors(t *testing.T) {
	_, err := Document{}.Vertices()
	assert.Error(t, err)

	_, err = Document{"vertices": "nope"}.Vertices()
	assert.Error(t, err)

	_, err = Document{"vertices": []any{map[string]any{"x": 1.0}}}.Vertices()
	assert.Error(t, err)
}

func TestSetYawOffset(t *testing.T) {
	doc := Document{}
	doc.SetYawOffset(-7.5)
	assert.Equal(t, -7.5, doc["yRotOffset"])
}

func TestRetargetTexture(t *testing.T) {
	doc := Document{
		"albedoTexturePath":             "textures/albedo.png",
		"metallicSmoothnessTexturePath": "textures/metallic_smoothness.png",
	}

	doc.RetargetTexture("albedo", ".png", ".jpg")
	assert.Equal(t, "textures/albedo.jpg", doc["albedoTexturePath"])

	// Absent or non-string references are left alone.
	doc.RetargetTexture("normal", ".png", ".jpg")
	_, ok := doc["normalTexturePath"]
	assert.False(t, ok)
}
