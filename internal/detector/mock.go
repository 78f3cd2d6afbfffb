package detector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// PlaneSurface is a bounded rectangular surface used by tests and demos.
// It implements Surface.
type PlaneSurface struct {
	Name      string
	Center    r3.Vec
	Normal    r3.Vec // unit surface up
	U, V      r3.Vec // unit local axes in the plane
	HalfU     float64
	HalfV     float64
	Priority  int
	Layers    uint32
	Hoverable bool
}

// NewPlaneSurface creates a hoverable width x height rectangle centered at
// center and facing normal, on every layer, with z-order 0.
func NewPlaneSurface(name string, center, normal r3.Vec, width, height float64) *PlaneSurface {
	n := r3.Unit(normal)
	ref := r3.Vec{Z: 1}
	if math.Abs(n.Z) > 0.9 {
		ref = r3.Vec{X: 1}
	}
	u := r3.Unit(r3.Cross(n, ref))
	v := r3.Cross(u, n)

	return &PlaneSurface{
		Name:      name,
		Center:    center,
		Normal:    n,
		U:         u,
		V:         v,
		HalfU:     width / 2,
		HalfV:     height / 2,
		Layers:    1,
		Hoverable: true,
	}
}

// ID implements Surface.
func (p *PlaneSurface) ID() string { return p.Name }

// IsHoverable implements Surface.
func (p *PlaneSurface) IsHoverable() bool { return p.Hoverable }

// Layer implements Surface.
func (p *PlaneSurface) Layer() uint32 { return p.Layers }

// ZOrder implements Surface.
func (p *PlaneSurface) ZOrder() int { return p.Priority }

// ProjectLocal implements Surface.
func (p *PlaneSurface) ProjectLocal(pt r3.Vec) r2.Vec {
	d := r3.Sub(pt, p.Center)
	return r2.Vec{X: r3.Dot(d, p.U), Y: r3.Dot(d, p.V)}
}

// Raycast implements Surface. Both faces of the plane can be hit.
func (p *PlaneSurface) Raycast(ray Ray) (Hit, bool) {
	denom := r3.Dot(p.Normal, ray.Direction)
	if math.Abs(denom) < 1e-12 {
		return Hit{}, false
	}
	t := r3.Dot(r3.Sub(p.Center, ray.Origin), p.Normal) / denom
	if t < 0 || t > ray.Length {
		return Hit{}, false
	}
	pt := ray.At(t)
	if !p.contains(p.ProjectLocal(pt)) {
		return Hit{}, false
	}
	return Hit{Point: pt, Normal: p.Normal, Distance: t, Shape: p.Name}, true
}

// ClosestPoint implements Surface.
func (p *PlaneSurface) ClosestPoint(pt r3.Vec) (Hit, bool) {
	local := p.ProjectLocal(pt)
	local.X = math.Max(-p.HalfU, math.Min(p.HalfU, local.X))
	local.Y = math.Max(-p.HalfV, math.Min(p.HalfV, local.Y))

	q := r3.Add(p.Center, r3.Add(r3.Scale(local.X, p.U), r3.Scale(local.Y, p.V)))
	return Hit{
		Point:    q,
		Normal:   p.Normal,
		Distance: r3.Norm(r3.Sub(pt, q)),
		Shape:    p.Name,
	}, true
}

func (p *PlaneSurface) contains(local r2.Vec) bool {
	return math.Abs(local.X) <= p.HalfU && math.Abs(local.Y) <= p.HalfV
}

// SphereSurface is a solid ball used by tests and demos. A point inside the
// ball overlaps it at distance zero. It implements Surface.
type SphereSurface struct {
	Name      string
	Center    r3.Vec
	Radius    float64
	Priority  int
	Layers    uint32
	Hoverable bool
}

// NewSphereSurface creates a hoverable ball on every layer, with z-order 0.
func NewSphereSurface(name string, center r3.Vec, radius float64) *SphereSurface {
	return &SphereSurface{
		Name:      name,
		Center:    center,
		Radius:    radius,
		Layers:    1,
		Hoverable: true,
	}
}

// ID implements Surface.
func (s *SphereSurface) ID() string { return s.Name }

// IsHoverable implements Surface.
func (s *SphereSurface) IsHoverable() bool { return s.Hoverable }

// Layer implements Surface.
func (s *SphereSurface) Layer() uint32 { return s.Layers }

// ZOrder implements Surface.
func (s *SphereSurface) ZOrder() int { return s.Priority }

// ProjectLocal implements Surface. Points are projected onto the ball's
// horizontal plane: X maps to X and Z to Y.
func (s *SphereSurface) ProjectLocal(pt r3.Vec) r2.Vec {
	d := r3.Sub(pt, s.Center)
	return r2.Vec{X: d.X, Y: d.Z}
}

// Raycast implements Surface. A ray starting inside the ball hits at its
// origin.
func (s *SphereSurface) Raycast(ray Ray) (Hit, bool) {
	oc := r3.Sub(ray.Origin, s.Center)
	c := r3.Dot(oc, oc) - s.Radius*s.Radius
	if c <= 0 {
		return Hit{Point: ray.Origin, Normal: s.normal(ray.Origin), Shape: s.Name}, true
	}

	b := r3.Dot(oc, ray.Direction)
	disc := b*b - c
	if b > 0 || disc < 0 {
		return Hit{}, false
	}
	t := -b - math.Sqrt(disc)
	if t > ray.Length {
		return Hit{}, false
	}
	pt := ray.At(t)
	return Hit{Point: pt, Normal: s.normal(pt), Distance: t, Shape: s.Name}, true
}

// ClosestPoint implements Surface.
func (s *SphereSurface) ClosestPoint(pt r3.Vec) (Hit, bool) {
	d := r3.Sub(pt, s.Center)
	n := r3.Norm(d)
	if n <= s.Radius {
		return Hit{Point: pt, Normal: s.normal(pt), Shape: s.Name}, true
	}
	q := r3.Add(s.Center, r3.Scale(s.Radius/n, d))
	return Hit{Point: q, Normal: r3.Scale(1/n, d), Distance: n - s.Radius, Shape: s.Name}, true
}

// normal returns the outward unit normal at pt, or up at the center.
func (s *SphereSurface) normal(pt r3.Vec) r3.Vec {
	d := r3.Sub(pt, s.Center)
	if r3.Norm(d) == 0 {
		return r3.Vec{Y: 1}
	}
	return r3.Unit(d)
}

// MockStrategy is a Strategy that replays preset frames. Tests use it to
// drive consumers of Frame without geometry.
type MockStrategy struct {
	infos   map[Surface]Info
	order   []Surface
	records []Record
}

// NewMockStrategy creates an empty MockStrategy.
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{infos: make(map[Surface]Info)}
}

// Name implements Strategy.
func (m *MockStrategy) Name() string { return "mock" }

// Set makes the next frames report info for surface.
func (m *MockStrategy) Set(surface Surface, info Info) {
	if _, ok := m.infos[surface]; !ok {
		m.order = append(m.order, surface)
	}
	m.infos[surface] = info
}

// Clear removes surface from the next frames.
func (m *MockStrategy) Clear(surface Surface) {
	delete(m.infos, surface)
	for i, s := range m.order {
		if s == surface {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetRecords makes the next frames report records.
func (m *MockStrategy) SetRecords(records []Record) {
	m.records = records
}

// Detect implements Strategy.
func (m *MockStrategy) Detect(in Input, out *Frame) {
	for _, s := range m.order {
		out.Surfaces = append(out.Surfaces, s)
		out.Infos[s] = m.infos[s]
	}
	out.Records = append(out.Records, m.records...)
}
