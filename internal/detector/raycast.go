package detector

import (
	"errors"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/fingertip/internal/rayangle"
)

// BacksideAngle is the angle, in degrees, between a surface's up and a ray
// heading under it at or beyond which the hit is treated as seen from the
// back or side and never selects.
const BacksideAngle = 45.0

// ErrNoRaySet is returned when a raycast strategy is built without rays.
var ErrNoRaySet = errors.New("ray angle set not configured")

type surfaceHits struct {
	points   []r3.Vec
	selected int
	nearest  float64
	shape    string
}

// RaycastStrategy casts the rays of a rayangle.Set from the attach pose.
type RaycastStrategy struct {
	set     *rayangle.Set
	scratch map[Surface]*surfaceHits
	warned  bool
}

// NewRaycastStrategy creates a RaycastStrategy over set.
func NewRaycastStrategy(set *rayangle.Set) (*RaycastStrategy, error) {
	if set == nil {
		return nil, ErrNoRaySet
	}
	return &RaycastStrategy{
		set:     set,
		scratch: make(map[Surface]*surfaceHits),
	}, nil
}

// NewIdleRaycastStrategy creates a RaycastStrategy without rays. It detects
// nothing until SetRays installs a set.
func NewIdleRaycastStrategy() *RaycastStrategy {
	return &RaycastStrategy{scratch: make(map[Surface]*surfaceHits)}
}

// Name implements Strategy.
func (s *RaycastStrategy) Name() string { return "raycast" }

// Set returns the active ray set.
func (s *RaycastStrategy) Set() *rayangle.Set { return s.set }

// SetRays replaces the ray set. A nil or empty set is reported once and
// disables detection until a usable set is installed.
func (s *RaycastStrategy) SetRays(set *rayangle.Set) {
	s.set = set
	s.warned = false
}

// Detect implements Strategy.
func (s *RaycastStrategy) Detect(in Input, out *Frame) {
	if s.set.Len() == 0 {
		if !s.warned {
			log.Printf("detector: raycast strategy has no rays, detection disabled")
			s.warned = true
		}
		return
	}

	for _, h := range s.scratch {
		h.points = h.points[:0]
		h.selected = 0
	}

	mirrored := in.Config.Handedness.Mirrored()
	total := 0

	for i := 0; i < s.set.Len(); i++ {
		angle := s.set.Ray(i)
		ray := Ray{
			Origin:    in.Pose.Position,
			Direction: in.Pose.Rotate(s.set.Direction(i, mirrored)),
			Length:    in.Config.HoverRadius,
		}

		for _, surface := range in.Surfaces {
			hit, ok := surface.Raycast(ray)
			if !ok || hit.Distance > ray.Length {
				continue
			}

			distance, facing := signedDistance(hit, ray.Direction)
			selection := facing && rayangle.WithinThreshold(angle, hit.Distance)

			out.Records = append(out.Records, Record{
				SurfaceID:   surface.ID(),
				AngleX:      angle.AngleX,
				AngleZ:      angle.AngleZ,
				Distance:    distance,
				IsSelection: selection,
			})

			h := s.hitsFor(surface, out)
			h.points = append(h.points, hit.Point)
			if selection {
				h.selected++
			}
			if len(h.points) == 1 || hit.Distance < h.nearest {
				h.nearest = hit.Distance
				h.shape = hit.Shape
			}
			total++
		}
	}

	if total == 0 {
		return
	}

	var sum r3.Vec
	for _, surface := range out.Surfaces {
		h := s.scratch[surface]
		out.Infos[surface] = Info{
			Heuristic:    Heuristic(total, h.selected, h.nearest),
			IsSelection:  h.selected > 0,
			ContactPoint: nearestTo(h.points, centroid(h.points)),
			Distance:     h.nearest,
			Shape:        h.shape,
		}
		for _, p := range h.points {
			sum = r3.Add(sum, p)
		}
	}
	out.HoverPoint = r3.Scale(1/float64(total), sum)
}

// hitsFor returns the scratch accumulator for surface, adding the surface to
// the frame the first time it is hit.
func (s *RaycastStrategy) hitsFor(surface Surface, out *Frame) *surfaceHits {
	h, ok := s.scratch[surface]
	if !ok {
		h = &surfaceHits{}
		s.scratch[surface] = h
	}
	if len(h.points) == 0 {
		out.Surfaces = append(out.Surfaces, surface)
	}
	return h
}

// Forget drops scratch state kept for a surface that left the registry.
func (s *RaycastStrategy) Forget(surface Surface) {
	delete(s.scratch, surface)
}

// signedDistance returns the hit distance, negated when the ray reaches the
// surface from underneath at a wide angle. The second result is false for
// such hits: they are never selections.
func signedDistance(hit Hit, dir r3.Vec) (float64, bool) {
	if r3.Dot(hit.Normal, dir) >= 0 && angleDeg(hit.Normal, dir) >= BacksideAngle {
		return -hit.Distance, false
	}
	return hit.Distance, true
}
