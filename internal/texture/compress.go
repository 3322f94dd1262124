package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decode source textures
	"os"
)

// ErrBelowThreshold is returned when even the maximum encoding quality
// cannot reach the requested similarity threshold.
var ErrBelowThreshold = errors.New("texture: similarity threshold unreachable at maximum quality")

// Options bounds the quality search.
type Options struct {
	MinQuality int // lowest JPEG quality considered
	MaxQuality int // highest JPEG quality considered
}

// DefaultOptions matches the pipeline defaults.
func DefaultOptions() Options {
	return Options{MinQuality: 20, MaxQuality: 95}
}

func (o Options) normalized() Options {
	if o.MinQuality < 1 {
		o.MinQuality = 1
	}
	if o.MaxQuality > 100 {
		o.MaxQuality = 100
	}
	if o.MaxQuality < o.MinQuality {
		o.MaxQuality = o.MinQuality
	}
	return o
}

// CompressToSSIM writes src to outputPath as a JPEG, selecting the lowest
// quality whose structural similarity against src is still >= threshold.
//
// The search bisects on quality and relies on similarity being
// non-decreasing in quality; where a metric violates that assumption the
// selected quality is approximate rather than optimal. If the threshold
// is unreachable at MaxQuality the file is not written and
// ErrBelowThreshold is returned. A threshold <= 0 accepts any encoding
// and selects MinQuality outright.
func CompressToSSIM(src image.Image, outputPath string, threshold float64, opts Options) (int, error) {
	opts = opts.normalized()

	if threshold <= 0 {
		data, err := encodeJPEG(src, opts.MinQuality)
		if err != nil {
			return 0, err
		}
		return opts.MinQuality, writeAtomic(outputPath, data)
	}

	score := func(quality int) (float64, []byte, error) {
		data, err := encodeJPEG(src, quality)
		if err != nil {
			return 0, nil, err
		}
		decoded, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return 0, nil, fmt.Errorf("decode candidate at quality %d: %w", quality, err)
		}
		s, err := SSIM(src, decoded)
		if err != nil {
			return 0, nil, err
		}
		return s, data, nil
	}

	// The ceiling must pass before the search is worth running.
	best, bestData, err := score(opts.MaxQuality)
	if err != nil {
		return 0, err
	}
	if best < threshold {
		return 0, fmt.Errorf("%w: ssim %.4f < %.4f", ErrBelowThreshold, best, threshold)
	}

	lo, hi := opts.MinQuality, opts.MaxQuality
	selected := opts.MaxQuality
	for lo < hi {
		mid := (lo + hi) / 2
		s, data, err := score(mid)
		if err != nil {
			return 0, err
		}
		if s >= threshold {
			selected = mid
			bestData = data
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	return selected, writeAtomic(outputPath, bestData)
}

// CompressFileToSSIM is CompressToSSIM over a source image file.
func CompressFileToSSIM(inputPath, outputPath string, threshold float64, opts Options) (int, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open texture %s: %w", inputPath, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode texture %s: %w", inputPath, err)
	}

	return CompressToSSIM(src, outputPath, threshold, opts)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg at quality %d: %w", quality, err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data via a temp file and rename so a partially
// written texture never replaces an existing one.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}
