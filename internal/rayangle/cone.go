package rayangle

// Cone returns rays on a square grid of angles in [-maxAngle, maxAngle] with
// the given step, all sharing one threshold. Corners outside the circle of
// radius maxAngle are skipped, so the result is a round cone around +Y.
func Cone(maxAngle, step, threshold float64) []RayAngle {
	if step <= 0 || maxAngle < 0 {
		return nil
	}

	var rays []RayAngle
	n := int(maxAngle / step)
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			ax := float64(i) * step
			az := float64(j) * step
			if ax*ax+az*az > maxAngle*maxAngle+angleEpsilon {
				continue
			}
			rays = append(rays, RayAngle{AngleX: ax, AngleZ: az, SelectionThreshold: threshold})
		}
	}
	return rays
}

// DefaultTable returns a single-cone table for the distal palmar segment,
// suitable as a starting point before calibration.
func DefaultTable() *Table {
	t, err := NewTable(SidePalmar, map[Key][]RayAngle{
		{Segment: SegmentDistal, Side: SidePalmar}: Cone(30, 15, 0.01),
	})
	if err != nil {
		panic(err)
	}
	return t
}
