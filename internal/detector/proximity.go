package detector

import "gonum.org/v1/gonum/spatial/r3"

// ProximityStrategy tests the attach point itself against each surface: a
// surface is hovered within HoverRadius and selected within SelectionRadius.
type ProximityStrategy struct{}

// NewProximityStrategy creates a ProximityStrategy.
func NewProximityStrategy() *ProximityStrategy {
	return &ProximityStrategy{}
}

// Name implements Strategy.
func (s *ProximityStrategy) Name() string { return "proximity" }

// Detect implements Strategy.
func (s *ProximityStrategy) Detect(in Input, out *Frame) {
	origin := in.Pose.Position
	var sum r3.Vec

	for _, surface := range in.Surfaces {
		hit, ok := surface.ClosestPoint(origin)
		if !ok || hit.Distance > in.Config.HoverRadius {
			continue
		}

		selection := hit.Distance < in.Config.SelectionRadius
		selected := 0
		if selection {
			selected = 1
		}

		out.Surfaces = append(out.Surfaces, surface)
		out.Infos[surface] = Info{
			Heuristic:    Heuristic(1, selected, hit.Distance),
			IsSelection:  selection,
			ContactPoint: hit.Point,
			Distance:     hit.Distance,
			Shape:        hit.Shape,
		}
		out.Records = append(out.Records, Record{
			SurfaceID:   surface.ID(),
			Distance:    hit.Distance,
			IsSelection: selection,
		})
		sum = r3.Add(sum, hit.Point)
	}

	if n := len(out.Surfaces); n > 0 {
		out.HoverPoint = r3.Scale(1/float64(n), sum)
	}
}
