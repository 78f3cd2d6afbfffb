package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoSamples is returned by a Reducer that has nothing to reduce.
	// The ray is dropped from the estimate.
	ErrNoSamples = errors.New("no samples to reduce")
	// ErrInvalidPercentile is returned for a percentile outside [0, 1].
	ErrInvalidPercentile = errors.New("percentile must be within [0, 1]")
	// ErrInvalidMultiplier is returned for a non-positive scale multiplier.
	ErrInvalidMultiplier = errors.New("multiplier must be positive")
	// ErrUnknownReducer is returned by ReducerConfig.Build for an unknown kind.
	ErrUnknownReducer = errors.New("unknown reducer")
)

// Sample is the nearest distance one ray recorded in one frame.
type Sample struct {
	Session  int
	Frame    int
	Distance float64
}

// RayData is everything recorded for one ray angle in one segment.
type RayData struct {
	AngleX float64
	AngleZ float64

	// Samples holds at most one sample per frame, in recording order.
	Samples []Sample

	// Shortest holds, per session, the index of the frame with the shortest
	// distance recorded by any ray, or -1 for a session without frames.
	Shortest []int
}

// Distances returns the sample distances in recording order.
func (d RayData) Distances() []float64 {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Distance
	}
	return out
}

// Reducer turns the samples of one ray into a selection threshold.
type Reducer interface {
	Name() string
	Reduce(d RayData) (float64, error)
}

// Average reduces to the arithmetic mean.
type Average struct{}

func (Average) Name() string { return "average" }

func (Average) Reduce(d RayData) (float64, error) {
	if len(d.Samples) == 0 {
		return 0, ErrNoSamples
	}
	return stat.Mean(d.Distances(), nil), nil
}

// Percentile reduces to the P quantile, linearly interpolated between order
// statistics. P is a fraction in [0, 1].
type Percentile struct {
	P float64
}

func (p Percentile) Name() string { return fmt.Sprintf("percentile(%g)", p.P) }

func (p Percentile) Reduce(d RayData) (float64, error) {
	if !(p.P >= 0 && p.P <= 1) {
		return 0, fmt.Errorf("%g: %w", p.P, ErrInvalidPercentile)
	}
	if len(d.Samples) == 0 {
		return 0, ErrNoSamples
	}
	x := d.Distances()
	sort.Float64s(x)

	h := float64(len(x)-1) * p.P
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return x[lo] + (h-float64(lo))*(x[hi]-x[lo]), nil
}

// Minimum reduces to the shortest distance the ray ever recorded.
type Minimum struct{}

func (Minimum) Name() string { return "minimum" }

func (Minimum) Reduce(d RayData) (float64, error) {
	if len(d.Samples) == 0 {
		return 0, ErrNoSamples
	}
	return floats.Min(d.Distances()), nil
}

// ShortestFrame reduces to the ray's distance in each session's globally
// shortest frame, averaged over sessions. A ray absent from every such frame
// has no samples.
type ShortestFrame struct{}

func (ShortestFrame) Name() string { return "shortest-frame" }

func (ShortestFrame) Reduce(d RayData) (float64, error) {
	var x []float64
	for _, s := range d.Samples {
		if s.Session < len(d.Shortest) && d.Shortest[s.Session] == s.Frame {
			x = append(x, s.Distance)
		}
	}
	if len(x) == 0 {
		return 0, ErrNoSamples
	}
	return stat.Mean(x, nil), nil
}

// Scaled multiplies another reducer's result, widening thresholds for rays
// that often lose contact.
type Scaled struct {
	Reducer    Reducer
	Multiplier float64
}

func (s Scaled) Name() string {
	return fmt.Sprintf("%s*%g", s.Reducer.Name(), s.Multiplier)
}

func (s Scaled) Reduce(d RayData) (float64, error) {
	if s.Multiplier <= 0 {
		return 0, fmt.Errorf("%g: %w", s.Multiplier, ErrInvalidMultiplier)
	}
	v, err := s.Reducer.Reduce(d)
	if err != nil {
		return 0, err
	}
	return v * s.Multiplier, nil
}

// ReducerConfig selects a Reducer from flat settings, as read from the
// environment.
type ReducerConfig struct {
	Kind       string  `env:"KIND" envDefault:"average"`
	Percentile float64 `env:"PERCENTILE" envDefault:"0.5"`
	Multiplier float64 `env:"MULTIPLIER" envDefault:"1"`
}

// Build returns the configured Reducer. A multiplier other than 1 wraps it
// in Scaled.
func (c ReducerConfig) Build() (Reducer, error) {
	var r Reducer
	switch c.Kind {
	case "average", "":
		r = Average{}
	case "percentile":
		if !(c.Percentile >= 0 && c.Percentile <= 1) {
			return nil, fmt.Errorf("%g: %w", c.Percentile, ErrInvalidPercentile)
		}
		r = Percentile{P: c.Percentile}
	case "minimum":
		r = Minimum{}
	case "shortest-frame":
		r = ShortestFrame{}
	default:
		return nil, fmt.Errorf("%q: %w", c.Kind, ErrUnknownReducer)
	}

	switch {
	case c.Multiplier == 1:
		return r, nil
	case c.Multiplier <= 0:
		return nil, fmt.Errorf("%g: %w", c.Multiplier, ErrInvalidMultiplier)
	default:
		return Scaled{Reducer: r, Multiplier: c.Multiplier}, nil
	}
}
