// Package texture implements perceptual-quality-bounded texture
// compression for the asset pipeline.
package texture

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// maxScoreDim bounds the size of images scored by SSIM. Larger images are
// scored on a downscaled copy, which makes the result approximate but
// keeps scoring cost bounded.
const maxScoreDim = 1024

const ssimWindow = 8

// SSIM computes the mean structural similarity between two images of
// equal dimensions, scored on the luma channel over 8x8 windows.
func SSIM(a, b image.Image) (float64, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0, fmt.Errorf("ssim: image dimensions differ: %dx%d vs %dx%d",
			ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}

	ga := toGray(a)
	gb := toGray(b)

	w, h := ga.Rect.Dx(), ga.Rect.Dy()
	if w < ssimWindow || h < ssimWindow {
		// Too small for windowing; score as a single window.
		return ssimWindowScore(ga, gb, 0, 0, w, h), nil
	}

	var sum float64
	var count int
	for y := 0; y+ssimWindow <= h; y += ssimWindow {
		for x := 0; x+ssimWindow <= w; x += ssimWindow {
			sum += ssimWindowScore(ga, gb, x, y, ssimWindow, ssimWindow)
			count++
		}
	}
	return sum / float64(count), nil
}

// Stabilization constants from the standard SSIM formulation, for 8-bit
// dynamic range.
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

func ssimWindowScore(a, b *image.Gray, x0, y0, w, h int) float64 {
	n := float64(w * h)

	var meanA, meanB float64
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			meanA += float64(a.GrayAt(a.Rect.Min.X+x, a.Rect.Min.Y+y).Y)
			meanB += float64(b.GrayAt(b.Rect.Min.X+x, b.Rect.Min.Y+y).Y)
		}
	}
	meanA /= n
	meanB /= n

	// A single sample has no variance; score the luminance term alone so
	// degenerate 1x1 textures still get a defined value.
	if n <= 1 {
		return (2*meanA*meanB + ssimC1) / (meanA*meanA + meanB*meanB + ssimC1)
	}

	var varA, varB, cov float64
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			da := float64(a.GrayAt(a.Rect.Min.X+x, a.Rect.Min.Y+y).Y) - meanA
			db := float64(b.GrayAt(b.Rect.Min.X+x, b.Rect.Min.Y+y).Y) - meanB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	num := (2*meanA*meanB + ssimC1) * (2*cov + ssimC2)
	den := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}

// toGray converts an image to grayscale, downscaling when it exceeds
// maxScoreDim in either dimension.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w > maxScoreDim || h > maxScoreDim {
		scale := float64(maxScoreDim) / float64(max(w, h))
		dw := int(float64(w) * scale)
		dh := int(float64(h) * scale)
		scaled := image.NewRGBA(image.Rect(0, 0, dw, dh))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		img = scaled
		b = scaled.Bounds()
		w, h = dw, dh
	}

	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.Draw(gray, gray.Bounds(), img, b.Min, xdraw.Src)
	return gray
}
