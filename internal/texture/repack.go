package texture

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// RepackMetallicSmoothness rewrites a metallic-smoothness map so it
// survives JPEG encoding. The source convention stores metallic in R and
// smoothness in A; JPEG drops alpha, so smoothness is moved into the
// otherwise unused B channel (G mirrors R) and alpha is flattened to
// opaque. Already-repacked buffers pass through with an identical layout.
func RepackMetallicSmoothness(src image.Image) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(out, image.Point{}, src, b, xdraw.Src, nil)

	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i+1] = out.Pix[i]   // G <- R (metallic)
		out.Pix[i+2] = out.Pix[i+3] // B <- A (smoothness)
		out.Pix[i+3] = 255
	}
	return out
}
