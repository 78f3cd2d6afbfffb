package rayangle

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestDirection(t *testing.T) {
	t.Run("zero angles point up", func(t *testing.T) {
		got := Direction(0, 0, false)
		if diff := cmp.Diff(r3.Vec{Y: 1}, got, approx); diff != "" {
			t.Errorf("Direction(0, 0) mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("angle x tilts toward +z", func(t *testing.T) {
		got := Direction(45, 0, false)
		want := r3.Vec{Y: math.Sqrt2 / 2, Z: math.Sqrt2 / 2}
		if diff := cmp.Diff(want, got, approx); diff != "" {
			t.Errorf("Direction(45, 0) mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("mirrored flips the z angle", func(t *testing.T) {
		right := Direction(10, 20, false)
		left := Direction(10, -20, true)
		if diff := cmp.Diff(right, left, approx); diff != "" {
			t.Errorf("mirrored direction mismatch (-want +got):\n%s", diff)
		}
		if Direction(0, 20, false).X >= 0 {
			t.Error("positive z angle should lean toward -x")
		}
		if Direction(0, 20, true).X <= 0 {
			t.Error("mirrored positive z angle should lean toward +x")
		}
	})

	t.Run("past ninety degrees points backward", func(t *testing.T) {
		got := Direction(80, 60, false)
		if got.Y >= 0 {
			t.Errorf("expected negative Y past 90 degrees combined, got %f", got.Y)
		}
	})

	t.Run("unit length", func(t *testing.T) {
		for _, a := range [][2]float64{{0, 0}, {12, -7}, {44, 44}, {70, 70}} {
			if n := r3.Norm(Direction(a[0], a[1], false)); math.Abs(n-1) > 1e-12 {
				t.Errorf("Direction(%v) norm = %f, want 1", a, n)
			}
		}
	})
}

func TestWithinThreshold(t *testing.T) {
	r := RayAngle{SelectionThreshold: 0.01}
	if !WithinThreshold(r, 0.005) {
		t.Error("0.005 should be within 0.01")
	}
	if WithinThreshold(r, 0.01) {
		t.Error("threshold is exclusive")
	}
	if WithinThreshold(r, 0.02) {
		t.Error("0.02 should be outside 0.01")
	}
}

func TestNewSet(t *testing.T) {
	tests := []struct {
		name    string
		rays    []RayAngle
		wantErr error
	}{
		{name: "no rays", rays: nil, wantErr: ErrNoRays},
		{name: "zero threshold", rays: []RayAngle{{AngleX: 1}}, wantErr: ErrInvalidThreshold},
		{name: "negative threshold", rays: []RayAngle{{SelectionThreshold: -1}}, wantErr: ErrInvalidThreshold},
		{name: "NaN threshold", rays: []RayAngle{{SelectionThreshold: math.NaN()}}, wantErr: ErrInvalidThreshold},
		{
			name: "duplicate angles",
			rays: []RayAngle{
				{AngleX: 5, AngleZ: 5, SelectionThreshold: 0.01},
				{AngleX: 5 + angleEpsilon/10, AngleZ: 5, SelectionThreshold: 0.02},
			},
			wantErr: ErrDuplicateAngle,
		},
		{
			name: "valid",
			rays: []RayAngle{
				{AngleX: 0, AngleZ: 0, SelectionThreshold: 0.01},
				{AngleX: 15, AngleZ: 0, SelectionThreshold: 0.02},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSet(tt.rays)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewSet() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSet() error = %v", err)
			}
			if s.Len() != len(tt.rays) {
				t.Errorf("Len() = %d, want %d", s.Len(), len(tt.rays))
			}
			if diff := cmp.Diff(tt.rays, s.Rays()); diff != "" {
				t.Errorf("Rays() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSet_CachedDirections(t *testing.T) {
	s := MustSet(RayAngle{AngleX: 20, AngleZ: 10, SelectionThreshold: 0.01})

	if diff := cmp.Diff(Direction(20, 10, false), s.Direction(0, false), approx); diff != "" {
		t.Errorf("right-hand direction mismatch:\n%s", diff)
	}
	if diff := cmp.Diff(Direction(20, 10, true), s.Direction(0, true), approx); diff != "" {
		t.Errorf("left-hand direction mismatch:\n%s", diff)
	}
	if s.Find(20, 10) != 0 || s.Find(1, 1) != -1 {
		t.Error("Find did not locate rays by angle")
	}

	var nilSet *Set
	if nilSet.Len() != 0 {
		t.Error("nil set should have no rays")
	}
}

func TestTable_AnglesFor(t *testing.T) {
	palmar := []RayAngle{{AngleX: 0, AngleZ: 0, SelectionThreshold: 0.01}}
	radial := []RayAngle{{AngleX: 0, AngleZ: 30, SelectionThreshold: 0.02}}

	table, err := NewTable(SidePalmar, map[Key][]RayAngle{
		{Segment: SegmentDistal, Side: SidePalmar}: palmar,
		{Segment: SegmentDistal, Side: SideRadial}: radial,
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	t.Run("exact side", func(t *testing.T) {
		s, ok := table.AnglesFor(SegmentDistal, SideRadial)
		if !ok {
			t.Fatal("expected radial set")
		}
		if diff := cmp.Diff(radial, s.Rays()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("falls back to fallback side", func(t *testing.T) {
		s, ok := table.AnglesFor(SegmentDistal, SideUlnar)
		if !ok {
			t.Fatal("expected fallback set")
		}
		if diff := cmp.Diff(palmar, s.Rays()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing segment", func(t *testing.T) {
		if _, ok := table.AnglesFor(SegmentProximal, SidePalmar); ok {
			t.Error("expected no set for proximal segment")
		}
	})

	t.Run("invalid entry rejected", func(t *testing.T) {
		_, err := NewTable(SidePalmar, map[Key][]RayAngle{{Segment: SegmentPalm}: nil})
		if !errors.Is(err, ErrNoRays) {
			t.Errorf("NewTable() error = %v, want ErrNoRays", err)
		}
	})
}

func TestTable_WithEmpty(t *testing.T) {
	radial := Key{Segment: SegmentDistal, Side: SideRadial}
	palmar := Key{Segment: SegmentDistal, Side: SidePalmar}
	base := DefaultTable()
	table := base.WithEmpty(radial, palmar)

	t.Run("empty key yields no rays", func(t *testing.T) {
		s, ok := table.AnglesFor(SegmentDistal, SideRadial)
		if !ok {
			t.Fatal("expected the empty key to be known")
		}
		if s != nil {
			t.Errorf("expected nil set, got %d rays", s.Len())
		}
	})

	t.Run("keys with rays are not emptied", func(t *testing.T) {
		s, ok := table.AnglesFor(SegmentDistal, SidePalmar)
		if !ok || s.Len() == 0 {
			t.Fatal("expected the palmar set to survive")
		}
		if diff := cmp.Diff([]Key{radial}, table.Empty()); diff != "" {
			t.Errorf("empty keys mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("original is unchanged", func(t *testing.T) {
		if len(base.Empty()) != 0 {
			t.Errorf("expected no empty keys on the original, got %v", base.Empty())
		}
		if s, _ := base.AnglesFor(SegmentDistal, SideRadial); s == nil {
			t.Error("expected the original to still fall back")
		}
	})

	t.Run("survives JSON", func(t *testing.T) {
		data, err := json.Marshal(table)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var decoded Table
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if diff := cmp.Diff(table.Empty(), decoded.Empty()); diff != "" {
			t.Errorf("empty keys mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("conflicting JSON rejected", func(t *testing.T) {
		var decoded Table
		data := `{"fallback_side":"palmar","sets":[{"segment":"distal","side":"palmar","rays":[{"angle_x":0,"angle_z":0,"selection_threshold":0.01}]}],"empty":[{"segment":"distal","side":"palmar"}]}`
		if err := json.Unmarshal([]byte(data), &decoded); err == nil {
			t.Error("expected an error for a key with rays listed as empty")
		}
	})
}

func TestTable_JSON(t *testing.T) {
	table := DefaultTable()

	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Table
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.Fallback() != table.Fallback() {
		t.Errorf("fallback = %q, want %q", decoded.Fallback(), table.Fallback())
	}
	if diff := cmp.Diff(table.Keys(), decoded.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"fallback_side":"palmar","sets":[{"segment":"distal","side":"palmar","rays":[]}]}`), &decoded); !errors.Is(err, ErrNoRays) {
		t.Errorf("Unmarshal() of empty set error = %v, want ErrNoRays", err)
	}
}

func TestCone(t *testing.T) {
	rays := Cone(30, 15, 0.01)
	if len(rays) != 13 {
		t.Fatalf("Cone(30, 15) produced %d rays, want 13", len(rays))
	}
	if _, err := NewSet(rays); err != nil {
		t.Errorf("cone rays should form a valid set: %v", err)
	}
	if Cone(30, 0, 0.01) != nil {
		t.Error("zero step should yield no rays")
	}
}
