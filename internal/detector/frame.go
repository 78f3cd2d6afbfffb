package detector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Record is one ray's result against one surface in one frame.
// Distance is signed: back-side hits are negative.
type Record struct {
	SurfaceID   string  `json:"surface_id"`
	AngleX      float64 `json:"angle_x"`
	AngleZ      float64 `json:"angle_z"`
	Distance    float64 `json:"distance"`
	IsSelection bool    `json:"is_selection"`
}

// Info is the aggregated interaction of one surface in one frame.
type Info struct {
	// Heuristic ranks competing surfaces. Lower is better.
	Heuristic    float64
	IsSelection  bool
	ContactPoint r3.Vec
	Distance     float64
	Shape        string
}

// Frame is the detection result for one tick. An Engine reuses its Frame
// between ticks, so a Frame is only valid until the next Detect call.
type Frame struct {
	Pose Pose

	// Surfaces lists the surfaces in Infos in the order they were first hit.
	Surfaces []Surface
	Infos    map[Surface]Info

	// HoverPoint is the centroid of every hit this frame, or the attach
	// position when nothing was hit.
	HoverPoint r3.Vec

	Records []Record
}

func (f *Frame) reset(p Pose) {
	f.Pose = p
	f.Surfaces = f.Surfaces[:0]
	if f.Infos == nil {
		f.Infos = make(map[Surface]Info)
	} else {
		clear(f.Infos)
	}
	f.HoverPoint = p.Position
	f.Records = f.Records[:0]
}

// Selected returns the number of surfaces selected this frame.
func (f *Frame) Selected() int {
	n := 0
	for _, s := range f.Surfaces {
		if f.Infos[s].IsSelection {
			n++
		}
	}
	return n
}

// Heuristic scores a surface from the rays that struck it:
// (totalRays / selectedRays) * (nearest + 1). Surfaces that no ray selected
// score +Inf. The formula is an empirically tuned ranking rule and may be
// replaced; callers should only rely on "lower is better".
func Heuristic(totalRays, selectedRays int, nearest float64) float64 {
	if selectedRays <= 0 {
		return math.Inf(1)
	}
	return float64(totalRays) / float64(selectedRays) * (nearest + 1)
}
