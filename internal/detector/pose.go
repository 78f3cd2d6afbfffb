// Package detector finds which candidate surfaces a hand-mounted attach point
// is hovering over or touching, frame by frame.
package detector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Handedness identifies the hand an attach point is mounted on.
type Handedness string

const (
	Right Handedness = "Right"
	Left  Handedness = "Left"
)

// Mirrored reports whether ray geometry must be mirrored for this hand.
func (h Handedness) Mirrored() bool {
	return h == Left
}

// Pose is the attach point's world position and orientation.
// The zero Rotation is treated as identity.
type Pose struct {
	Position r3.Vec
	Rotation r3.Rotation
}

// NewPose returns a pose rotated by angle (radians) about axis.
func NewPose(position r3.Vec, angle float64, axis r3.Vec) Pose {
	return Pose{Position: position, Rotation: r3.NewRotation(angle, axis)}
}

// Rotate maps a local direction into world space.
func (p Pose) Rotate(v r3.Vec) r3.Vec {
	if p.Rotation == (r3.Rotation{}) {
		return v
	}
	return p.Rotation.Rotate(v)
}

// Up returns the pose's local up axis in world space.
func (p Pose) Up() r3.Vec {
	return p.Rotate(r3.Vec{Y: 1})
}

// angleDeg returns the angle between two non-zero vectors in degrees.
func angleDeg(a, b r3.Vec) float64 {
	c := r3.Cos(a, b)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}

// centroid returns the mean of points. points must be non-empty.
func centroid(points []r3.Vec) r3.Vec {
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(points)), sum)
}

// nearestTo returns the point in points closest to target.
func nearestTo(points []r3.Vec, target r3.Vec) r3.Vec {
	best := points[0]
	bestDist := r3.Norm2(r3.Sub(best, target))
	for _, p := range points[1:] {
		if d := r3.Norm2(r3.Sub(p, target)); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}
