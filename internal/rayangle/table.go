package rayangle

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Segment is an anatomical region of a finger used to bucket rays and calibration data.
type Segment string

const (
	SegmentDistal       Segment = "distal"
	SegmentIntermediate Segment = "intermediate"
	SegmentProximal     Segment = "proximal"
	SegmentPalm         Segment = "palm"
)

// Side is the face of a segment a ray subset belongs to.
type Side string

const (
	SidePalmar Side = "palmar"
	SideDorsal Side = "dorsal"
	SideRadial Side = "radial"
	SideUlnar  Side = "ulnar"
)

// Key addresses one ray subset in a Table.
type Key struct {
	Segment Segment `json:"segment"`
	Side    Side    `json:"side"`
}

func (k Key) String() string {
	return string(k.Segment) + "/" + string(k.Side)
}

// Table holds ray sets keyed by segment and side, with a fallback side used
// when a requested side has no set of its own. A key marked empty has no rays
// and never falls back: lookups for it yield a nil set.
type Table struct {
	sets     map[Key]*Set
	empty    map[Key]struct{}
	fallback Side
}

// NewTable builds a Table. Every entry must form a valid Set.
func NewTable(fallback Side, entries map[Key][]RayAngle) (*Table, error) {
	t := &Table{
		sets:     make(map[Key]*Set, len(entries)),
		fallback: fallback,
	}
	for k, rays := range entries {
		s, err := NewSet(rays)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
		t.sets[k] = s
	}
	return t, nil
}

// Fallback returns the fallback side.
func (t *Table) Fallback() Side {
	return t.fallback
}

// Len returns the number of sets in the table.
func (t *Table) Len() int {
	return len(t.sets)
}

// WithEmpty returns a copy of t with keys marked as having no rays. Keys that
// already hold a set are left alone.
func (t *Table) WithEmpty(keys ...Key) *Table {
	out := &Table{
		sets:     t.sets,
		empty:    make(map[Key]struct{}, len(t.empty)+len(keys)),
		fallback: t.fallback,
	}
	for k := range t.empty {
		out.empty[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := t.sets[k]; !ok {
			out.empty[k] = struct{}{}
		}
	}
	return out
}

// Empty returns the keys marked as having no rays, sorted.
func (t *Table) Empty() []Key {
	keys := make([]Key, 0, len(t.empty))
	for k := range t.empty {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Set returns the set stored under exactly this key.
func (t *Table) Set(k Key) (*Set, bool) {
	s, ok := t.sets[k]
	return s, ok
}

// AnglesFor returns the set for the segment and side, falling back to the
// table's fallback side. A key marked empty resolves to a nil set with ok
// true. It reports false when neither key is known.
func (t *Table) AnglesFor(segment Segment, side Side) (*Set, bool) {
	for _, k := range []Key{{Segment: segment, Side: side}, {Segment: segment, Side: t.fallback}} {
		if s, ok := t.sets[k]; ok {
			return s, true
		}
		if _, ok := t.empty[k]; ok {
			return nil, true
		}
	}
	return nil, false
}

// Keys returns the table keys sorted by segment then side.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.sets))
	for k := range t.sets {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Segment != keys[j].Segment {
			return keys[i].Segment < keys[j].Segment
		}
		return keys[i].Side < keys[j].Side
	})
}

type jsonEntry struct {
	Key
	Rays []RayAngle `json:"rays"`
}

type jsonTable struct {
	Fallback Side        `json:"fallback_side"`
	Sets     []jsonEntry `json:"sets"`
	Empty    []Key       `json:"empty,omitempty"`
}

// MarshalJSON encodes the table with sets in key order.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := jsonTable{Fallback: t.fallback}
	for _, k := range t.Keys() {
		out.Sets = append(out.Sets, jsonEntry{Key: k, Rays: t.sets[k].Rays()})
	}
	if len(t.empty) > 0 {
		out.Empty = t.Empty()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a table.
func (t *Table) UnmarshalJSON(data []byte) error {
	var in jsonTable
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	entries := make(map[Key][]RayAngle, len(in.Sets))
	for _, e := range in.Sets {
		if _, dup := entries[e.Key]; dup {
			return fmt.Errorf("set %s listed twice", e.Key)
		}
		entries[e.Key] = e.Rays
	}
	for _, k := range in.Empty {
		if _, ok := entries[k]; ok {
			return fmt.Errorf("set %s listed with rays and as empty", k)
		}
	}
	built, err := NewTable(in.Fallback, entries)
	if err != nil {
		return err
	}
	*t = *built.WithEmpty(in.Empty...)
	return nil
}
