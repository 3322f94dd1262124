// Package runtime is the client side of the validation runtime: a
// long-lived session that assets are loaded into one at a time to verify
// they survive a real engine load, and optionally rendered from a set of
// view angles.
package runtime

import "context"

// Result is the outcome of one session operation.
type Result struct {
	Success      bool
	ErrorMessage string
	LastAction   string

	// Metadata is the action's structured return payload. Persisted
	// copies must be sanitized first; see SanitizeMetadata.
	Metadata map[string]any
}

// Rotation is one render view: an axis and a rotation around it.
type Rotation struct {
	X, Y, Z float64
	Degrees float64
}

// RenderRequest asks the session to render a loaded asset.
type RenderRequest struct {
	AssetID     string
	OutputDir   string
	Rotations   []Rotation
	SkyboxColor [3]uint8
	Width       int
	Height      int
}

// Session is one validation runtime instance. Sessions are stateful:
// Reset must be called between assets so the previous asset's cache
// entries cannot leak into the next load.
type Session interface {
	// Reset returns the session to a fresh procedural scene and clears
	// the bounded internal asset cache.
	Reset(ctx context.Context) error

	// CreateAsset loads an asset document from assetDir into the session.
	CreateAsset(ctx context.Context, assetDir, assetID, encoding string) (Result, error)

	// RenderViews renders the loaded asset from the requested views,
	// writing images into req.OutputDir.
	RenderViews(ctx context.Context, req RenderRequest) (Result, error)

	// Close tears the session down.
	Close() error
}

// Ownership states whether the pipeline owns the session lifecycle or
// merely borrows a caller-supplied one. Teardown is gated on this: a
// borrowed session is never closed by the pipeline.
type Ownership int

const (
	BorrowsSession Ownership = iota
	OwnsSession
)

// ExpandAngles turns an angle step into explicit view angles covering a
// full turn, e.g. 90 -> [0, 90, 180, 270].
func ExpandAngles(step int) []float64 {
	if step <= 0 {
		return nil
	}
	n := 360 / step
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, float64(i*step))
	}
	return out
}

// RotationsFor crosses view angles with rotation axes.
func RotationsFor(angles []float64, axes [][3]float64) []Rotation {
	if len(axes) == 0 {
		axes = [][3]float64{{0, 1, 0}}
	}
	out := make([]Rotation, 0, len(angles)*len(axes))
	for _, deg := range angles {
		for _, axis := range axes {
			out = append(out, Rotation{X: axis[0], Y: axis[1], Z: axis[2], Degrees: deg})
		}
	}
	return out
}

// SanitizeMetadata strips the large nested object-metadata field from a
// load result before it is persisted.
func SanitizeMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		if k == "objectMetadata" {
			continue
		}
		out[k] = v
	}
	return out
}
