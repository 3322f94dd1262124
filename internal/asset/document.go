// Package asset models the structured asset description produced by the
// conversion stage and its on-disk encodings.
package asset

import (
	"fmt"
	"strings"

	"github.com/meshforge/meshforge/internal/geometry"
)

// Document is the structured asset description: geometry, materials, and
// texture references. It is schema-light on purpose; the pipeline only
// interprets the handful of keys it transforms and passes the rest
// through untouched.
type Document map[string]any

// Vertices extracts the triangle-soup vertex set.
func (d Document) Vertices() ([]geometry.Vec3, error) {
	raw, ok := d["vertices"]
	if !ok {
		return nil, fmt.Errorf("document has no vertices")
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("vertices have unexpected type %T", raw)
	}

	out := make([]geometry.Vec3, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			// msgpack decodes maps with interface{} keys.
			mi, ok := item.(map[any]any)
			if !ok {
				return nil, fmt.Errorf("vertex %d has unexpected type %T", i, item)
			}
			m = make(map[string]any, len(mi))
			for k, v := range mi {
				if ks, ok := k.(string); ok {
					m[ks] = v
				}
			}
		}

		x, okX := toFloat(m["x"])
		y, okY := toFloat(m["y"])
		z, okZ := toFloat(m["z"])
		if !okX || !okY || !okZ {
			return nil, fmt.Errorf("vertex %d is missing a coordinate", i)
		}
		out = append(out, geometry.Vec3{X: x, Y: y, Z: z})
	}
	return out, nil
}

// SetYawOffset records the pose-normalization rotation on the document.
func (d Document) SetYawOffset(degrees float64) {
	d["yRotOffset"] = degrees
}

// RetargetTexture rewrites the extension of a "<name>TexturePath"
// reference, e.g. after a .png map was compressed to .jpg.
func (d Document) RetargetTexture(name, fromExt, toExt string) {
	key := name + "TexturePath"
	if v, ok := d[key].(string); ok {
		d[key] = strings.Replace(v, fromExt, toExt, 1)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
