package pipeline

import (
	"fmt"
	"image"
	_ "image/png" // decode raw texture maps
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meshforge/meshforge/internal/asset"
	"github.com/meshforge/meshforge/internal/metrics"
	"github.com/meshforge/meshforge/internal/texture"
)

// textureMaps are the maps the conversion stage emits as PNG, paired with
// the document key prefix their path reference lives under.
var textureMaps = []struct {
	file string // base name on disk
	key  string // document key prefix for "<key>TexturePath"
}{
	{"albedo", "albedo"},
	{"metallic_smoothness", "metallicSmoothness"},
	{"normal", "normal"},
	{"emission", "emission"},
}

// consumedTextures are raw inputs folded into the packed
// metallic-smoothness map; they are dropped from the final artifact.
var consumedTextures = []string{"roughness.png", "metallic.png"}

// processTextures compresses each emitted PNG map to a JPEG that stays
// above the configured similarity threshold, rewrites the document's
// texture references, and removes the PNG originals.
func (s *Sequencer) processTextures(assetDir string, doc asset.Document, log *slog.Logger) error {
	opts := texture.Options{
		MinQuality: s.cfg.Texture.MinQuality,
		MaxQuality: s.cfg.Texture.MaxQuality,
	}
	m := metrics.Get()

	for _, tm := range textureMaps {
		srcPath := filepath.Join(assetDir, tm.file+".png")
		f, err := os.Open(srcPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open texture %s: %w", srcPath, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("decode texture %s: %w", srcPath, err)
		}

		// The metallic-smoothness convention keeps smoothness in alpha,
		// which JPEG cannot carry.
		if tm.file == "metallic_smoothness" {
			img = texture.RepackMetallicSmoothness(img)
		}

		outPath := filepath.Join(assetDir, tm.file+".jpg")
		quality, err := texture.CompressToSSIM(img, outPath, s.cfg.Texture.SSIMThreshold, opts)
		if err != nil {
			return fmt.Errorf("compress %s: %w", tm.file, err)
		}
		if m != nil {
			m.TextureQuality.Observe(float64(quality))
		}

		if err := os.Remove(srcPath); err != nil {
			log.Warn("failed to remove source texture", "path", srcPath, "error", err)
		}
		doc.RetargetTexture(tm.key, ".png", ".jpg")
		log.Debug("texture compressed", "map", tm.file, "quality", quality)
	}

	for _, name := range consumedTextures {
		os.Remove(filepath.Join(assetDir, name))
	}
	return nil
}
