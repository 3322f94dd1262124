package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotateY(t *testing.T) {
	v := Vec3{X: 1, Y: 2, Z: 0}

	r := v.RotateY(math.Pi / 2)
	assert.InDelta(t, 0, r.X, 1e-12)
	assert.InDelta(t, 2, r.Y, 1e-12)
	assert.InDelta(t, 1, r.Z, 1e-12)

	// A full turn is the identity.
	r = v.RotateY(2 * math.Pi)
	assert.InDelta(t, v.X, r.X, 1e-12)
	assert.InDelta(t, v.Z, r.Z, 1e-12)
}

func TestBoundsVolume(t *testing.T) {
	pts := []Vec3{
		{X: -1, Y: 0, Z: 2},
		{X: 3, Y: 5, Z: -2},
		{X: 0, Y: 1, Z: 0},
	}
	b := BoundsOf(pts)
	assert.Equal(t, Vec3{X: -1, Y: 0, Z: -2}, b.Min)
	assert.Equal(t, Vec3{X: 3, Y: 5, Z: 2}, b.Max)
	assert.InDelta(t, 4*5*4, b.Volume(), 1e-12)
}
