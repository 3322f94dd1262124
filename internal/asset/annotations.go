package asset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ResolveAnnotations maps an annotations location to the concrete file
// for one asset. A file path applies to every asset as-is; a directory
// is probed for "<id>.json" and then "<id>/annotations.json.gz".
func ResolveAnnotations(annotationsPath, assetID string) (string, error) {
	if annotationsPath == "" {
		return "", nil
	}

	info, err := os.Stat(annotationsPath)
	if err != nil {
		return "", fmt.Errorf("annotations path %s: %w", annotationsPath, err)
	}
	if !info.IsDir() {
		return annotationsPath, nil
	}

	candidates := []string{
		filepath.Join(annotationsPath, assetID+".json"),
		filepath.Join(annotationsPath, assetID, "annotations.json.gz"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("annotations directory %s has no annotations for %s", annotationsPath, assetID)
}

// AttachAnnotations merges the per-asset annotation record into the
// document under the "annotations" key, when an annotations file exists
// alongside the asset and the document does not already carry one.
func AttachAnnotations(doc Document, assetDir string) error {
	if _, ok := doc["annotations"]; ok {
		return nil
	}

	path := filepath.Join(assetDir, "annotations.json.gz")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open annotations %s: %w", path, err)
	}
	defer f.Close()

	r, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open annotations %s: %w", path, err)
	}
	data, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("read annotations %s: %w", path, err)
	}

	var annotations map[string]any
	if err := json.Unmarshal(data, &annotations); err != nil {
		return fmt.Errorf("parse annotations %s: %w", path, err)
	}
	doc["annotations"] = annotations
	return nil
}
