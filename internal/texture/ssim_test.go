package texture

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage is a smooth test pattern that survives JPEG encoding well.
func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func TestSSIMIdentical(t *testing.T) {
	img := gradientImage(64, 64)
	s, err := SSIM(img, img)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)
}

func TestSSIMOrdersByDistortion(t *testing.T) {
	img := gradientImage(64, 64)

	slight := gradientImage(64, 64)
	for i := 0; i < len(slight.Pix); i += 16 {
		slight.Pix[i] ^= 0x04
	}

	heavy := noiseImage(64, 64, 1)

	sSlight, err := SSIM(img, slight)
	require.NoError(t, err)
	sHeavy, err := SSIM(img, heavy)
	require.NoError(t, err)

	assert.Greater(t, sSlight, sHeavy)
	assert.Less(t, sHeavy, 0.5)
}

func TestSSIMDimensionMismatch(t *testing.T) {
	_, err := SSIM(gradientImage(64, 64), gradientImage(32, 64))
	assert.Error(t, err)
}

func TestSSIMSinglePixel(t *testing.T) {
	// A 1x1 image has no variance to compare; the score must still be
	// defined so threshold checks cannot pass on NaN.
	a := image.NewGray(image.Rect(0, 0, 1, 1))
	a.Pix[0] = 200
	b := image.NewGray(image.Rect(0, 0, 1, 1))
	b.Pix[0] = 50

	s, err := SSIM(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = SSIM(a, b)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(s))
	assert.Less(t, s, 1.0)
}

func TestSSIMSmallImage(t *testing.T) {
	// Below the window size the whole image is scored as one window.
	img := gradientImage(4, 4)
	s, err := SSIM(img, img)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)
}
