package calibration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/fingertip/internal/rayangle"
)

var (
	// ErrNoReducer is returned when an Estimator has no Reducer.
	ErrNoReducer = errors.New("calibration reducer not set")
	// ErrInvalidFraction is returned for a MinFraction outside [0, 1].
	ErrInvalidFraction = errors.New("min fraction must be within [0, 1]")
	// ErrEmptyDataset is returned when there is nothing to estimate from.
	ErrEmptyDataset = errors.New("calibration dataset is empty")
)

// Estimator derives a ray angle table from recorded sessions.
type Estimator struct {
	// MinFraction is the share of a segment's frames a ray must appear in
	// to be kept.
	MinFraction float64

	Reducer      Reducer
	FallbackSide rayangle.Side
}

// DefaultEstimator returns an Estimator with sensible default values.
func DefaultEstimator() Estimator {
	return Estimator{
		MinFraction:  0.1,
		Reducer:      Average{},
		FallbackSide: rayangle.SidePalmar,
	}
}

// Result is the outcome of one estimation run.
type Result struct {
	Table *rayangle.Table

	// Empty lists the keys for which no ray qualified. They are absent from
	// Table, so those segments never detect contact.
	Empty []rayangle.Key
}

type keyResult struct {
	key  rayangle.Key
	rays []rayangle.RayAngle
}

// Estimate reduces every segment of ds in parallel. The first failing
// segment fails the whole run and no partial table is returned.
func (e Estimator) Estimate(ctx context.Context, ds Dataset) (*Result, error) {
	if e.Reducer == nil {
		return nil, ErrNoReducer
	}
	if e.MinFraction < 0 || e.MinFraction > 1 || math.IsNaN(e.MinFraction) {
		return nil, fmt.Errorf("%g: %w", e.MinFraction, ErrInvalidFraction)
	}
	if len(ds) == 0 {
		return nil, ErrEmptyDataset
	}

	keys := make([]rayangle.Key, 0, len(ds))
	for k := range ds {
		keys = append(keys, k)
	}
	sortKeys(keys)

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan keyResult, len(keys))
	for _, k := range keys {
		k := k
		sessions := ds[k]
		g.Go(func() error {
			rays, err := e.estimateKey(gctx, sessions)
			if err != nil {
				return fmt.Errorf("estimate %s: %w", k, err)
			}
			results <- keyResult{key: k, rays: rays}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	entries := make(map[rayangle.Key][]rayangle.RayAngle, len(keys))
	res := &Result{}
	for pending := len(keys); pending > 0; {
		select {
		case r := <-results:
			pending--
			if len(r.rays) == 0 {
				log.Printf("calibration: no qualifying rays for %s", r.key)
				res.Empty = append(res.Empty, r.key)
				continue
			}
			entries[r.key] = r.rays
		case err := <-done:
			if err != nil {
				return nil, err
			}
			// Every worker succeeded, so the rest is already buffered.
			done = nil
		}
	}
	if done != nil {
		if err := <-done; err != nil {
			return nil, err
		}
	}

	sortKeys(res.Empty)
	table, err := rayangle.NewTable(e.FallbackSide, entries)
	if err != nil {
		return nil, fmt.Errorf("build table: %w", err)
	}
	res.Table = table.WithEmpty(res.Empty...)
	return res, nil
}

type angleKey struct {
	x, z float64
}

// estimateKey reduces the sessions of one segment to its ray angles.
func (e Estimator) estimateKey(ctx context.Context, sessions []Session) ([]rayangle.RayAngle, error) {
	rays := make(map[angleKey]*RayData)
	var order []angleKey
	shortest := make([]int, len(sessions))
	total := 0

	for si, s := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shortest[si] = -1
		best := math.Inf(1)
		for fi, frame := range s.Frames {
			nearest := make(map[angleKey]float64, len(frame))
			for _, r := range frame {
				if r.Distance < 0 {
					continue
				}
				k := angleKey{x: r.AngleX, z: r.AngleZ}
				if d, ok := nearest[k]; !ok || r.Distance < d {
					nearest[k] = r.Distance
				}
				if r.Distance < best {
					best, shortest[si] = r.Distance, fi
				}
			}
			if len(nearest) == 0 {
				continue
			}
			total++

			for _, r := range frame {
				k := angleKey{x: r.AngleX, z: r.AngleZ}
				d, ok := nearest[k]
				if !ok {
					continue
				}
				delete(nearest, k)

				rd, seen := rays[k]
				if !seen {
					rd = &RayData{AngleX: k.x, AngleZ: k.z}
					rays[k] = rd
					order = append(order, k)
				}
				rd.Samples = append(rd.Samples, Sample{Session: si, Frame: fi, Distance: d})
			}
		}
	}

	minFrames := e.MinFraction * float64(total)
	var out []rayangle.RayAngle
	for _, k := range order {
		rd := rays[k]
		if float64(len(rd.Samples)) < minFrames {
			continue
		}
		rd.Shortest = shortest

		threshold, err := e.Reducer.Reduce(*rd)
		if errors.Is(err, ErrNoSamples) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s at (%g, %g): %w", e.Reducer.Name(), k.x, k.z, err)
		}
		if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			continue
		}

		out = append(out, rayangle.RayAngle{
			AngleX:             k.x,
			AngleZ:             k.z,
			SelectionThreshold: threshold,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AngleX != out[j].AngleX {
			return out[i].AngleX < out[j].AngleX
		}
		return out[i].AngleZ < out[j].AngleZ
	})
	return out, nil
}

func sortKeys(keys []rayangle.Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Segment != keys[j].Segment {
			return keys[i].Segment < keys[j].Segment
		}
		return keys[i].Side < keys[j].Side
	})
}
