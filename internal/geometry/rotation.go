package geometry

import (
	"errors"
	"math"
)

var (
	// ErrNoVertices is returned when the vertex set is empty.
	ErrNoVertices = errors.New("vertex set is empty")

	// ErrBadIncrements is returned when increments is even or < 1.
	ErrBadIncrements = errors.New("increments must be an odd integer >= 1")

	// ErrNegativeRange is returned for a negative rotation range.
	ErrNegativeRange = errors.New("max degrees must be >= 0")
)

// OptimalYawDegrees finds the yaw rotation, in degrees, that minimizes the
// volume of the axis-aligned bounding box of the given vertex set.
//
// It evaluates `increments` evenly spaced candidate angles over the
// inclusive range [-maxDegrees, +maxDegrees]. Oddness of increments
// guarantees the middle candidate is exactly zero; that candidate's volume
// is scaled by (1 - noRotationBias) so near-ties resolve to no rotation
// instead of jittering between runs.
//
// The returned angle is the NEGATION of the volume-minimizing candidate:
// the target runtime treats clockwise rotations as positive.
//
// This is an exhaustive grid search. The result is exact over the grid,
// not a continuous optimum.
func OptimalYawDegrees(vertices []Vec3, maxDegrees float64, increments int, noRotationBias float64) (float64, error) {
	if maxDegrees < 0 {
		return 0, ErrNegativeRange
	}
	if increments < 1 || increments%2 == 0 {
		return 0, ErrBadIncrements
	}
	if len(vertices) == 0 {
		return 0, ErrNoVertices
	}

	maxRad := maxDegrees * math.Pi / 180
	half := increments / 2

	var step float64
	if increments > 1 {
		step = 2 * maxRad / float64(increments-1)
	}

	rotated := make([]Vec3, len(vertices))
	bestIdx := 0
	bestVolume := math.Inf(1)
	for i := 0; i < increments; i++ {
		// Anchor on the midpoint so the zero candidate is exactly zero.
		theta := step * float64(i-half)
		for j, v := range vertices {
			rotated[j] = v.RotateY(theta)
		}
		volume := BoundsOf(rotated).Volume()
		if i == half {
			volume *= 1 - noRotationBias
		}
		if volume < bestVolume {
			bestVolume = volume
			bestIdx = i
		}
	}

	theta := step * float64(bestIdx-half)
	return -theta * 180 / math.Pi, nil
}
