package pipeline

import (
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshforge/meshforge/internal/asset"
	"github.com/meshforge/meshforge/internal/texture"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func smoothImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func textureSequencer(t *testing.T) *Sequencer {
	t.Helper()
	cfg := testConfig(t, map[string]string{"chair_42": ""})
	cfg.Validate.Skip = true
	cfg.Texture.SSIMThreshold = 0.5
	seq, err := New(cfg, Deps{Fetcher: &mockFetcher{}})
	require.NoError(t, err)
	return seq
}

func TestProcessTexturesCompressesAndRetargets(t *testing.T) {
	s := textureSequencer(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "albedo.png"), smoothImage(64, 64))
	writePNG(t, filepath.Join(dir, "metallic_smoothness.png"), smoothImage(64, 64))
	writePNG(t, filepath.Join(dir, "roughness.png"), smoothImage(8, 8))

	doc := asset.Document{
		"albedoTexturePath":             "albedo.png",
		"metallicSmoothnessTexturePath": "metallic_smoothness.png",
	}
	require.NoError(t, s.processTextures(dir, doc, slog.Default()))

	for _, name := range []string{"albedo.jpg", "metallic_smoothness.jpg"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	for _, name := range []string{"albedo.png", "metallic_smoothness.png", "roughness.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s must be removed", name)
	}

	assert.Equal(t, "albedo.jpg", doc["albedoTexturePath"])
	assert.Equal(t, "metallic_smoothness.jpg", doc["metallicSmoothnessTexturePath"])
}

func TestProcessTexturesMissingMapsAreSkipped(t *testing.T) {
	s := textureSequencer(t)
	doc := asset.Document{}
	require.NoError(t, s.processTextures(t.TempDir(), doc, slog.Default()))
}

func TestProcessTexturesThresholdUnreachable(t *testing.T) {
	s := textureSequencer(t)
	s.cfg.Texture.SSIMThreshold = 0.9999999

	rng := rand.New(rand.NewSource(7))
	noise := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for i := range noise.Pix {
		noise.Pix[i] = uint8(rng.Intn(256))
	}

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "albedo.png"), noise)

	err := s.processTextures(dir, asset.Document{}, slog.Default())
	assert.ErrorIs(t, err, texture.ErrBelowThreshold)
}
