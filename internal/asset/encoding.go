package asset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// Encodings lists the recognized document encodings, in the order they
// are probed when locating an existing document.
var Encodings = []string{".json", ".json.gz", ".msgpack", ".msgpack.gz"}

// ErrNoDocument is returned when no document exists for an asset in any
// recognized encoding.
var ErrNoDocument = errors.New("asset: no document found")

// SavePathFor returns the document path for an asset id and encoding.
func SavePathFor(outDir, assetID, encoding string) string {
	return filepath.Join(outDir, assetID+encoding)
}

// ExistingDocumentPath locates an asset's document, probing the
// recognized encodings in order. forceEncoding restricts the probe to a
// single encoding when non-empty.
func ExistingDocumentPath(outDir, assetID, forceEncoding string) (string, error) {
	probe := Encodings
	if forceEncoding != "" {
		probe = []string{forceEncoding}
	}
	for _, enc := range probe {
		path := SavePathFor(outDir, assetID, enc)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w for %s in %s", ErrNoDocument, assetID, outDir)
}

// Load reads an asset's document from outDir in whatever recognized
// encoding it exists.
func Load(outDir, assetID string) (Document, error) {
	path, err := ExistingDocumentPath(outDir, assetID, "")
	if err != nil {
		return nil, err
	}
	return LoadPath(path)
}

// LoadPath reads a document from a specific path, dispatching on the
// path's encoding suffix.
func LoadPath(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	enc := encodingOf(path)
	if strings.HasSuffix(enc, ".gz") {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip document %s: %w", path, err)
		}
		data, err = io.ReadAll(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("decompress document %s: %w", path, err)
		}
		enc = strings.TrimSuffix(enc, ".gz")
	}

	var doc Document
	switch enc {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json document %s: %w", path, err)
		}
	case ".msgpack":
		if err := msgpack.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse msgpack document %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("document %s has unrecognized encoding %q", path, enc)
	}
	return doc, nil
}

// Save writes a document to path, dispatching on the path's encoding
// suffix. The write is atomic (temp file + rename) so rerunning a stage
// over an existing artifact overwrites rather than corrupts.
func Save(doc Document, path string) error {
	enc := encodingOf(path)
	compress := strings.HasSuffix(enc, ".gz")
	enc = strings.TrimSuffix(enc, ".gz")

	var data []byte
	var err error
	switch enc {
	case ".json":
		data, err = json.Marshal(doc)
	case ".msgpack":
		data, err = msgpack.Marshal(doc)
	default:
		err = fmt.Errorf("unrecognized encoding %q", enc)
	}
	if err != nil {
		return fmt.Errorf("encode document %s: %w", path, err)
	}

	if compress {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("compress document %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("compress document %s: %w", path, err)
		}
		data = buf.Bytes()
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp document %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}

// encodingOf returns the document encoding suffix of a path, including a
// trailing .gz when present (".json.gz", ".msgpack.gz").
func encodingOf(path string) string {
	ext := filepath.Ext(path)
	if ext == ".gz" {
		return filepath.Ext(strings.TrimSuffix(path, ext)) + ext
	}
	return ext
}
