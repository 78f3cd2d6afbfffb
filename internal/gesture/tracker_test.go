package gesture

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/fingertip/internal/detector"
)

const (
	selectionInside  = 0.005
	selectionOutside = 0.02
)

// touchSurface is a plane with event listeners, like an interactable button.
type touchSurface struct {
	*detector.PlaneSurface
	Listeners

	taps     []TapEvent
	gestures []GestureEvent
}

func newTouchSurface(name string, zOrder int, handlesTap, handlesGesture bool) *touchSurface {
	s := &touchSurface{
		PlaneSurface: detector.NewPlaneSurface(name, r3.Vec{}, r3.Vec{Y: 1}, 10, 10),
	}
	s.Priority = zOrder
	if handlesTap {
		s.OnTap(func(e TapEvent) { s.taps = append(s.taps, e) })
	}
	if handlesGesture {
		s.OnGesture(func(e GestureEvent) { s.gestures = append(s.gestures, e) })
	}
	return s
}

// recorder captures interactor-level events.
type recorder struct {
	taps     []TapEvent
	gestures []GestureEvent
}

func record(tr *Tracker) *recorder {
	r := &recorder{}
	tr.Listeners().OnTap(func(e TapEvent) { r.taps = append(r.taps, e) })
	tr.Listeners().OnGesture(func(e GestureEvent) { r.gestures = append(r.gestures, e) })
	return r
}

// fixture drives a Tracker from a proximity engine, using the selection
// radius of 0.01 the engine defaults to.
type fixture struct {
	t       *testing.T
	engine  *detector.Engine
	tracker *Tracker
	start   time.Time
}

func newFixture(t *testing.T, surfaces ...detector.Surface) *fixture {
	t.Helper()

	cfg := detector.DefaultConfig()
	cfg.SelectionRadius = 0.01
	e, err := detector.NewEngine(cfg, detector.NewProximityStrategy(), detector.NewRegistry(surfaces...))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return &fixture{
		t:       t,
		engine:  e,
		tracker: NewTracker(DefaultConfig()),
		start:   time.Unix(1000, 0),
	}
}

// step places the attach point at (x, height, 0) at the given offset.
func (f *fixture) step(offset time.Duration, x, height float64) {
	frame := f.engine.Detect(detector.Pose{Position: r3.Vec{X: x, Y: height}})
	f.tracker.Update(f.start.Add(offset), frame)
}

type entry struct {
	surface   detector.Surface
	selected  bool
	heuristic float64
	distance  float64
	point     r3.Vec
}

func makeFrame(entries ...entry) *detector.Frame {
	f := &detector.Frame{Infos: make(map[detector.Surface]detector.Info)}
	if len(entries) > 0 {
		f.HoverPoint = entries[0].point
	}
	for _, e := range entries {
		f.Surfaces = append(f.Surfaces, e.surface)
		f.Infos[e.surface] = detector.Info{
			Heuristic:    e.heuristic,
			IsSelection:  e.selected,
			ContactPoint: e.point,
			Distance:     e.distance,
		}
	}
	return f
}

func TestTracker_Tap(t *testing.T) {
	surface := newTouchSurface("button", 0, true, true)
	f := newFixture(t, surface)
	rec := record(f.tracker)

	f.step(0, 0, selectionInside)
	if f.tracker.State() != StateTap {
		t.Fatalf("expected tap state, got %s", f.tracker.State())
	}
	f.step(100*time.Millisecond, 0, selectionInside)
	f.step(200*time.Millisecond, 0, selectionOutside)

	if len(surface.taps) != 1 {
		t.Errorf("expected exactly one tap, got %d", len(surface.taps))
	}
	if len(surface.gestures) != 0 || len(rec.gestures) != 0 {
		t.Errorf("expected no gesture events, got %d", len(surface.gestures))
	}
	if len(rec.taps) != 1 || rec.taps[0].Surface != surface {
		t.Errorf("expected interactor to see the tap on the button, got %+v", rec.taps)
	}
	if f.tracker.State() != StateNone {
		t.Errorf("expected none after release, got %s", f.tracker.State())
	}
}

func TestTracker_HoldBecomesGesture(t *testing.T) {
	surface := newTouchSurface("button", 0, true, true)
	f := newFixture(t, surface)

	for ms := 0; ms <= 500; ms += 100 {
		f.step(time.Duration(ms)*time.Millisecond, 0, selectionInside)
	}
	if f.tracker.State() != StateGesture {
		t.Fatalf("expected gesture after holding past tap time, got %s", f.tracker.State())
	}
	f.step(600*time.Millisecond, 0, selectionOutside)

	if len(surface.gestures) == 0 {
		t.Fatal("expected at least one gesture event")
	}
	if len(surface.taps) != 0 {
		t.Errorf("expected no tap, got %d", len(surface.taps))
	}
	if surface.gestures[0].Phase != Started {
		t.Errorf("expected first event started, got %s", surface.gestures[0].Phase)
	}
	if last := surface.gestures[len(surface.gestures)-1]; last.Phase != Stopped {
		t.Errorf("expected last event stopped, got %s", last.Phase)
	}
}

func TestTracker_MovementBecomesGesture(t *testing.T) {
	surface := newTouchSurface("slider", 0, true, true)
	f := newFixture(t, surface)

	f.step(0, 0, selectionInside)
	f.step(50*time.Millisecond, 1.2, selectionInside)
	if f.tracker.State() != StateGesture {
		t.Fatalf("expected gesture after moving past tap distance, got %s", f.tracker.State())
	}
	f.step(100*time.Millisecond, 1.5, selectionInside)
	f.step(150*time.Millisecond, 1.5, selectionOutside)

	if len(surface.gestures) != 3 {
		t.Fatalf("expected started, updated, stopped; got %d events", len(surface.gestures))
	}

	updated := surface.gestures[1]
	if updated.Phase != Updated {
		t.Fatalf("expected updated, got %s", updated.Phase)
	}
	if math.Abs(updated.DeltaDirection.X-0.3) > 1e-9 || math.Abs(updated.DeltaDirection.Y) > 1e-9 {
		t.Errorf("expected delta (0.3, 0), got %v", updated.DeltaDirection)
	}
	if math.Abs(updated.CumulativeDistance-0.3) > 1e-9 {
		t.Errorf("expected cumulative distance 0.3, got %f", updated.CumulativeDistance)
	}
	if updated.TimeDelta != 50*time.Millisecond {
		t.Errorf("expected time delta 50ms, got %v", updated.TimeDelta)
	}
	if math.Abs(updated.StartPosition.X-1.2) > 1e-9 {
		t.Errorf("expected start position x 1.2, got %f", updated.StartPosition.X)
	}
	if updated.TrackingSurface != surface {
		t.Error("expected slider to be the tracking surface")
	}
	if len(surface.taps) != 0 {
		t.Errorf("expected no tap, got %d", len(surface.taps))
	}
}

func TestTracker_LowerZOrderWinsTap(t *testing.T) {
	for _, lowFirst := range []bool{true, false} {
		low := newTouchSurface("low", 0, true, true)
		high := newTouchSurface("high", 1, true, true)

		var surfaces []detector.Surface
		if lowFirst {
			surfaces = []detector.Surface{low, high}
		} else {
			surfaces = []detector.Surface{high, low}
		}

		f := newFixture(t, surfaces...)
		f.step(0, 0, selectionInside)
		f.step(100*time.Millisecond, 0, selectionOutside)

		if len(low.taps) != 1 {
			t.Errorf("lowFirst=%v: expected z-order 0 to receive the tap, got %d", lowFirst, len(low.taps))
		}
		if len(high.taps) != 0 {
			t.Errorf("lowFirst=%v: expected z-order 1 to receive nothing, got %d", lowFirst, len(high.taps))
		}
	}
}

func TestTracker_LateEntrantIgnored(t *testing.T) {
	first := newTouchSurface("first", 1, true, true)
	late := newTouchSurface("late", 0, true, true)
	tr := NewTracker(DefaultConfig())
	start := time.Unix(0, 0)

	for ms := 0; ms <= 300; ms += 100 {
		tr.Update(start.Add(time.Duration(ms)*time.Millisecond), makeFrame(
			entry{surface: first, selected: true, heuristic: 2},
		))
	}
	tr.Update(start.Add(500*time.Millisecond), makeFrame(
		entry{surface: first, selected: true, heuristic: 2},
		entry{surface: late, selected: true, heuristic: 1},
	))
	tr.Update(start.Add(600*time.Millisecond), makeFrame())

	if len(late.gestures) != 0 || len(late.taps) != 0 {
		t.Errorf("late surface must not receive the session's events, got %d gestures %d taps",
			len(late.gestures), len(late.taps))
	}
	if len(first.gestures) == 0 {
		t.Error("expected the first surface to receive the gesture")
	}
	if ts, ok := tr.Tracked(late); ok && ts.Selectable {
		t.Error("late surface must not become eligible")
	}
}

func TestTracker_HandlerRedirect(t *testing.T) {
	t.Run("declining surface is skipped", func(t *testing.T) {
		gestureOnly := newTouchSurface("gesture-only", 0, false, true)
		tapper := newTouchSurface("tapper", 1, true, false)
		f := newFixture(t, gestureOnly, tapper)
		rec := record(f.tracker)

		f.step(0, 0, selectionInside)
		f.step(100*time.Millisecond, 0, selectionOutside)

		if len(tapper.taps) != 1 {
			t.Errorf("expected tap redirected to the next surface, got %d", len(tapper.taps))
		}
		if len(rec.taps) != 1 || rec.taps[0].Surface != tapper {
			t.Errorf("expected interactor tap on tapper, got %+v", rec.taps)
		}
	})

	t.Run("no surface handles the event", func(t *testing.T) {
		a := newTouchSurface("a", 0, false, false)
		b := detector.NewPlaneSurface("plain", r3.Vec{}, r3.Vec{Y: 1}, 10, 10)
		f := newFixture(t, a, b)
		rec := record(f.tracker)

		f.step(0, 0, selectionInside)
		f.step(100*time.Millisecond, 0, selectionOutside)

		if len(a.taps) != 0 {
			t.Errorf("expected no surface tap, got %d", len(a.taps))
		}
		if len(rec.taps) != 1 {
			t.Fatalf("expected interactor listener to fire once, got %d", len(rec.taps))
		}
		if rec.taps[0].Surface != nil {
			t.Errorf("expected nil surface, got %v", rec.taps[0].Surface)
		}
	})
}

func TestTracker_SimpleDistanceMode(t *testing.T) {
	// byHeuristic wins on heuristic, byDistance wins on raw distance.
	byHeuristic := newTouchSurface("by-heuristic", 0, true, true)
	byDistance := newTouchSurface("by-distance", 0, true, true)

	run := func(cfg Config) *Tracker {
		tr := NewTracker(cfg)
		start := time.Unix(0, 0)
		tr.Update(start, makeFrame(
			entry{surface: byHeuristic, selected: true, heuristic: 1, distance: 0.008},
			entry{surface: byDistance, selected: true, heuristic: 3, distance: 0.002},
		))
		tr.Update(start.Add(300*time.Millisecond), makeFrame(
			entry{surface: byHeuristic, selected: true, heuristic: 1, distance: 0.008},
			entry{surface: byDistance, selected: true, heuristic: 3, distance: 0.002},
		))
		tr.Update(start.Add(350*time.Millisecond), makeFrame(
			entry{surface: byHeuristic, heuristic: math.Inf(1), distance: 0.02},
			entry{surface: byDistance, heuristic: math.Inf(1), distance: 0.02},
		))
		return tr
	}

	run(DefaultConfig())
	if len(byHeuristic.taps) != 1 || len(byDistance.taps) != 0 {
		t.Errorf("heuristic mode: expected by-heuristic to win, got %d/%d", len(byHeuristic.taps), len(byDistance.taps))
	}

	cfg := DefaultConfig()
	cfg.SimpleDistance = true
	run(cfg)
	if len(byDistance.taps) != 1 {
		t.Errorf("distance mode: expected by-distance to win, got %d", len(byDistance.taps))
	}
}

func TestTracker_ScoresRestartEachSession(t *testing.T) {
	a := newTouchSurface("a", 0, true, true)
	b := newTouchSurface("b", 0, true, true)
	tr := NewTracker(DefaultConfig())
	start := time.Unix(0, 0)
	hover := func(s detector.Surface) entry {
		return entry{surface: s, heuristic: 8, distance: 0.02}
	}

	// a alone is selected and scores 1.
	tr.Update(start, makeFrame(
		entry{surface: a, selected: true, heuristic: 1, distance: 0.002},
		hover(b),
	))
	tr.Update(start.Add(100*time.Millisecond), makeFrame(hover(a), hover(b)))
	if len(a.taps) != 1 {
		t.Fatalf("expected a to win the first tap, got %d taps", len(a.taps))
	}

	// Both stay hovered. b now scores better than a.
	second := start.Add(time.Second)
	tr.Update(second, makeFrame(
		entry{surface: a, selected: true, heuristic: 5, distance: 0.006},
		entry{surface: b, selected: true, heuristic: 1.5, distance: 0.004},
	))
	tr.Update(second.Add(100*time.Millisecond), makeFrame(hover(a), hover(b)))

	if len(a.taps) != 1 || len(b.taps) != 1 {
		t.Errorf("expected b to win the second tap with a fresh score, got a=%d b=%d", len(a.taps), len(b.taps))
	}
	ts, ok := tr.Tracked(a)
	if !ok {
		t.Fatal("expected a to stay tracked while hovered")
	}
	if !math.IsInf(ts.Heuristic, 1) || !math.IsInf(ts.MinDistance, 1) {
		t.Errorf("expected scores cleared after release, got heuristic %g distance %g", ts.Heuristic, ts.MinDistance)
	}
}

func TestTracker_DroppedSurfaceDeactivated(t *testing.T) {
	a := newTouchSurface("a", 0, true, true)
	b := newTouchSurface("b", 0, true, true)
	tr := NewTracker(DefaultConfig())
	start := time.Unix(0, 0)

	tr.Update(start, makeFrame(
		entry{surface: a, selected: true, heuristic: 1, distance: 0.001},
		entry{surface: b, heuristic: math.Inf(1), distance: 0.03},
	))
	tr.Update(start.Add(10*time.Millisecond), makeFrame(
		entry{surface: a, selected: true, heuristic: 1, distance: 0.001},
	))

	ts, ok := tr.Tracked(b)
	if !ok {
		t.Fatal("dropped surface should stay tracked during the session")
	}
	if ts.Active {
		t.Error("dropped surface should be inactive")
	}
	if !math.IsInf(ts.Heuristic, 1) || !math.IsInf(ts.MinDistance, 1) {
		t.Errorf("expected +Inf heuristic and distance, got %f %f", ts.Heuristic, ts.MinDistance)
	}

	// Release with nothing active forgets every surface.
	tr.Update(start.Add(20*time.Millisecond), makeFrame())
	if _, ok := tr.Tracked(a); ok {
		t.Error("expected tracking cleared after release with no active surfaces")
	}
	if tr.State() != StateNone {
		t.Errorf("expected none, got %s", tr.State())
	}
}

func TestTracker_TrackingSwitchResyncs(t *testing.T) {
	a := newTouchSurface("a", 0, true, true)
	b := newTouchSurface("b", 1, true, true)
	tr := NewTracker(DefaultConfig())
	rec := record(tr)
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	tr.Update(at(0), makeFrame(entry{surface: a, selected: true, heuristic: 1}))
	tr.Update(at(100), makeFrame(
		entry{surface: a, selected: true, heuristic: 1},
		entry{surface: b, selected: true, heuristic: 1, point: r3.Vec{X: 5}},
	))
	tr.Update(at(500), makeFrame(
		entry{surface: a, selected: true, heuristic: 1},
		entry{surface: b, selected: true, heuristic: 1, point: r3.Vec{X: 5}},
	))
	if tr.State() != StateGesture || tr.Session().TrackingSurface != a {
		t.Fatalf("expected gesture tracking a, got %s", tr.State())
	}

	// a leaves: b becomes the tracking surface and the frame only resyncs.
	tr.Update(at(550), makeFrame(entry{surface: b, selected: true, heuristic: 1, point: r3.Vec{X: 5}}))
	if got := len(rec.gestures); got != 1 {
		t.Fatalf("expected only the started event so far, got %d", got)
	}
	if tr.Session().TrackingSurface != b {
		t.Fatal("expected tracking to switch to b")
	}

	tr.Update(at(600), makeFrame(entry{surface: b, selected: true, heuristic: 1, point: r3.Vec{X: 5.5}}))
	if got := len(rec.gestures); got != 2 {
		t.Fatalf("expected an updated event after resync, got %d", got)
	}
	if d := rec.gestures[1].DeltaDirection; math.Abs(d.X-0.5) > 1e-9 {
		t.Errorf("expected delta measured on b (0.5), got %v", d)
	}
	if rec.gestures[1].Surface != a {
		t.Error("events keep going to the arbitrated surface")
	}
}

func TestTracker_HoverWithoutTouch(t *testing.T) {
	surface := newTouchSurface("button", 0, true, true)
	f := newFixture(t, surface)
	rec := record(f.tracker)

	f.step(0, 0, selectionOutside)
	if f.tracker.State() != StateTap {
		t.Fatalf("expected hover to open a session, got %s", f.tracker.State())
	}
	f.step(time.Second, 0, 1)

	if f.tracker.State() != StateNone {
		t.Errorf("expected session reset after hover ends, got %s", f.tracker.State())
	}
	if len(rec.taps)+len(rec.gestures) != 0 {
		t.Error("expected no events for hover without touch")
	}

	// A touch after a long hover still gets a full tap window.
	f.step(2*time.Second, 0, selectionOutside)
	f.step(3*time.Second, 0, selectionInside)
	f.step(3*time.Second+100*time.Millisecond, 0, selectionOutside)
	if len(rec.taps) != 1 {
		t.Errorf("expected a tap after hovering, got %d", len(rec.taps))
	}
}

func TestListeners(t *testing.T) {
	var l Listeners
	if l.HandlesGesture(StateTap) || l.HandlesGesture(StateGesture) || l.HandlesGesture(StateNone) {
		t.Error("empty listeners handle nothing")
	}
	l.OnTap(func(TapEvent) {})
	if !l.HandlesGesture(StateTap) || l.HandlesGesture(StateGesture) {
		t.Error("expected tap handling only")
	}
	if l.TapCount() != 1 || l.GestureCount() != 0 {
		t.Errorf("unexpected counts %d/%d", l.TapCount(), l.GestureCount())
	}
}
