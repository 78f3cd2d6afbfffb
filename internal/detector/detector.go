package detector

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Surface is a candidate touch surface. Implementations must be comparable
// (typically pointers) because surfaces key the per-frame interaction map.
type Surface interface {
	// ID returns a stable identity used in recorded ray data.
	ID() string

	// Raycast intersects the surface with a finite ray.
	// Returns false when the ray misses or the hit is beyond ray.Length.
	Raycast(ray Ray) (Hit, bool)

	// ClosestPoint returns the point on the surface closest to p.
	ClosestPoint(p r3.Vec) (Hit, bool)

	// IsHoverable reports whether the surface currently accepts hovering.
	IsHoverable() bool

	// Layer returns the interaction-layer bits of the surface.
	Layer() uint32

	// ZOrder returns the arbitration priority. Lower wins.
	ZOrder() int

	// ProjectLocal maps a world point to the surface's 2D local coordinates.
	ProjectLocal(p r3.Vec) r2.Vec
}

// Ray is a finite ray in world space. Direction is a unit vector.
type Ray struct {
	Origin    r3.Vec
	Direction r3.Vec
	Length    float64
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Direction))
}

// Hit is the result of a surface hit-test.
type Hit struct {
	Point    r3.Vec
	Normal   r3.Vec // surface up at the hit
	Distance float64
	Shape    string // identity of the colliding shape
}

// Config holds configuration options for touch detection.
type Config struct {
	// HoverRadius is the length of every detection ray and the proximity
	// search radius. It is independent of the per-ray selection thresholds.
	HoverRadius float64

	// SelectionRadius is the selection distance used by ProximityStrategy.
	SelectionRadius float64

	// LayerMask filters candidate surfaces by Layer bits.
	LayerMask uint32

	// Handedness of the hand the attach point belongs to.
	Handedness Handedness
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		HoverRadius:     0.05,
		SelectionRadius: 0.01,
		LayerMask:       ^uint32(0),
		Handedness:      Right,
	}
}

// Strategy fills a Frame from the attach pose and the candidate surfaces.
// A Strategy instance belongs to a single Engine: it may keep scratch buffers
// between calls.
type Strategy interface {
	Name() string
	Detect(in Input, out *Frame)
}

// Input is what a Strategy sees for one frame.
type Input struct {
	Pose     Pose
	Config   Config
	Surfaces []Surface
}
