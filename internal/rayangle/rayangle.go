// Package rayangle describes the cone of sampling rays cast from an attach point
// and the per-ray distance thresholds that turn a hit into a selection.
package rayangle

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// angleEpsilon is the tolerance, in degrees, under which two angles are the same.
const angleEpsilon = 1e-4

var (
	// ErrNoRays is returned when a set is built without any rays.
	ErrNoRays = errors.New("ray angle set has no rays")
	// ErrInvalidThreshold is returned for a non-positive selection threshold.
	ErrInvalidThreshold = errors.New("selection threshold must be positive")
	// ErrDuplicateAngle is returned when two rays share the same angle pair.
	ErrDuplicateAngle = errors.New("duplicate ray angle")
)

// RayAngle is a sampling ray direction expressed as two angles, in degrees,
// relative to the attach pose's local up axis.
type RayAngle struct {
	AngleX             float64 `json:"angle_x"`
	AngleZ             float64 `json:"angle_z"`
	SelectionThreshold float64 `json:"selection_threshold"`
}

// SameAngles reports whether both rays point the same way, ignoring thresholds.
func (r RayAngle) SameAngles(o RayAngle) bool {
	return math.Abs(r.AngleX-o.AngleX) < angleEpsilon && math.Abs(r.AngleZ-o.AngleZ) < angleEpsilon
}

// WithinThreshold reports whether a hit at distance counts as a selection.
func WithinThreshold(r RayAngle, distance float64) bool {
	return distance < r.SelectionThreshold
}

// Direction returns the unit direction for the given angles in the attach
// pose's local frame. Up is +Y. Mirrored hands negate the Z angle.
func Direction(angleX, angleZ float64, mirrored bool) r3.Vec {
	if mirrored {
		angleZ = -angleZ
	}
	ax := angleX * math.Pi / 180
	az := angleZ * math.Pi / 180

	v := r3.Vec{X: -math.Tan(az), Y: 1, Z: math.Tan(ax)}
	// Past 90 degrees the ray points back through the reference frame.
	if math.Hypot(angleX, angleZ) > 90 {
		v.Y = -v.Y
	}
	return r3.Unit(v)
}

// Set is an immutable, ordered collection of ray angles. Directions are
// computed once for each handedness when the set is built.
type Set struct {
	rays     []RayAngle
	dirs     []r3.Vec
	mirrored []r3.Vec
}

// NewSet validates rays and builds a Set.
func NewSet(rays []RayAngle) (*Set, error) {
	if len(rays) == 0 {
		return nil, ErrNoRays
	}

	s := &Set{
		rays:     make([]RayAngle, len(rays)),
		dirs:     make([]r3.Vec, len(rays)),
		mirrored: make([]r3.Vec, len(rays)),
	}
	for i, r := range rays {
		if !(r.SelectionThreshold > 0) {
			return nil, fmt.Errorf("ray %d (%g, %g): %w", i, r.AngleX, r.AngleZ, ErrInvalidThreshold)
		}
		for j := 0; j < i; j++ {
			if rays[j].SameAngles(r) {
				return nil, fmt.Errorf("rays %d and %d (%g, %g): %w", j, i, r.AngleX, r.AngleZ, ErrDuplicateAngle)
			}
		}
		s.rays[i] = r
		s.dirs[i] = Direction(r.AngleX, r.AngleZ, false)
		s.mirrored[i] = Direction(r.AngleX, r.AngleZ, true)
	}

	return s, nil
}

// MustSet is like NewSet but panics on error. Intended for fixtures.
func MustSet(rays ...RayAngle) *Set {
	s, err := NewSet(rays)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of rays. A nil set has none.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rays)
}

// Ray returns the i-th ray.
func (s *Set) Ray(i int) RayAngle {
	return s.rays[i]
}

// Rays returns a copy of the rays in order.
func (s *Set) Rays() []RayAngle {
	if s == nil {
		return nil
	}
	out := make([]RayAngle, len(s.rays))
	copy(out, s.rays)
	return out
}

// Direction returns the cached local direction of the i-th ray.
func (s *Set) Direction(i int, mirrored bool) r3.Vec {
	if mirrored {
		return s.mirrored[i]
	}
	return s.dirs[i]
}

// Find returns the index of the ray matching the angle pair, or -1.
func (s *Set) Find(angleX, angleZ float64) int {
	target := RayAngle{AngleX: angleX, AngleZ: angleZ}
	for i, r := range s.rays {
		if r.SameAngles(target) {
			return i
		}
	}
	return -1
}
