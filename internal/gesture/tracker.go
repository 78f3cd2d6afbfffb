package gesture

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/fingertip/internal/detector"
)

// Config holds the tap/gesture classification thresholds.
type Config struct {
	// TapTime is the longest a contact may last and still be a tap.
	TapTime time.Duration

	// TapDistance is the furthest the hover point may travel during a tap.
	TapDistance float64

	// SimpleDistance ranks surfaces with equal z-order by nearest distance
	// instead of by heuristic.
	SimpleDistance bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		TapTime:     400 * time.Millisecond,
		TapDistance: 1,
	}
}

// TrackingState is what a Tracker knows about one surface.
type TrackingState struct {
	Active      bool
	MinDistance float64
	Heuristic   float64

	// Selectable marks the surface eligible for arbitration. It is only set
	// while the session is still in the tap window.
	Selectable    bool
	StartTime     time.Time
	StartPosition r2.Vec

	ActiveSince time.Time
	Position    r2.Vec // latest local contact position

	seq      int
	seen     bool
	selected bool
}

func (ts *TrackingState) deactivate() {
	ts.Active = false
	ts.Heuristic = math.Inf(1)
	ts.MinDistance = math.Inf(1)
}

// Session is one tap-or-gesture lifecycle. It is always reset as a whole.
type Session struct {
	State               State
	StartTime           time.Time
	CumulativeDistance  float64
	CumulativeDirection r2.Vec
	TrackingSurface     detector.Surface
	PrioritySurface     detector.Surface

	travel        float64
	lastHover     r3.Vec
	startPosition r2.Vec
	lastPosition  r2.Vec
	lastEvent     time.Time
}

// Tracker is the gesture state machine of one interactor. It is driven by
// Update once per frame, after detection, and is not safe for concurrent use.
type Tracker struct {
	config    Config
	tracked   map[detector.Surface]*TrackingState
	order     []detector.Surface
	session   Session
	selected  int
	seq       int
	listeners Listeners
}

// NewTracker creates a Tracker.
func NewTracker(config Config) *Tracker {
	return &Tracker{
		config:  config,
		tracked: make(map[detector.Surface]*TrackingState),
	}
}

// Listeners returns the interactor-level registry. It receives every tap and
// gesture event, whether or not a surface handled it.
func (t *Tracker) Listeners() *Listeners {
	return &t.listeners
}

// State returns the current classification.
func (t *Tracker) State() State {
	return t.session.State
}

// Session returns a copy of the current session.
func (t *Tracker) Session() Session {
	return t.session
}

// Tracked returns the tracking state of s.
func (t *Tracker) Tracked(s detector.Surface) (TrackingState, bool) {
	ts, ok := t.tracked[s]
	if !ok {
		return TrackingState{}, false
	}
	return *ts, true
}

// Reset drops the session and every tracked surface without emitting events.
func (t *Tracker) Reset() {
	t.session = Session{}
	clear(t.tracked)
	t.order = t.order[:0]
	t.selected = 0
}

// Update advances the state machine with one detection frame.
func (t *Tracker) Update(now time.Time, frame *detector.Frame) {
	selected := 0
	for _, s := range frame.Surfaces {
		info := frame.Infos[s]
		ts := t.track(s)
		ts.seen = true

		if !ts.Active {
			ts.Active = true
			ts.ActiveSince = now
			if t.session.State == StateNone {
				t.begin(now)
			}
		}

		ts.Heuristic = math.Min(ts.Heuristic, info.Heuristic)
		ts.MinDistance = math.Min(ts.MinDistance, info.Distance)
		ts.Position = s.ProjectLocal(info.ContactPoint)
		ts.selected = info.IsSelection
		if info.IsSelection {
			selected++
		}
	}

	for _, s := range t.order {
		ts := t.tracked[s]
		if !ts.seen {
			ts.selected = false
			if ts.Active {
				ts.deactivate()
			}
		}
		ts.seen = false
	}

	switch {
	case selected == 0 && t.selected > 0:
		t.release(now)
	case selected > 0:
		if t.selected == 0 {
			t.touch(now, frame.HoverPoint)
		}
		t.advance(now, frame.HoverPoint)
	}

	if selected == 0 && t.session.State != StateNone && !t.anyActive() {
		t.reset()
	}
	t.selected = selected
}

func (t *Tracker) track(s detector.Surface) *TrackingState {
	ts, ok := t.tracked[s]
	if !ok {
		t.seq++
		ts = &TrackingState{
			Heuristic:   math.Inf(1),
			MinDistance: math.Inf(1),
			seq:         t.seq,
		}
		t.tracked[s] = ts
		t.order = append(t.order, s)
	}
	return ts
}

func (t *Tracker) begin(now time.Time) {
	t.session = Session{State: StateTap, StartTime: now}
}

// touch starts the tap window when selection begins.
func (t *Tracker) touch(now time.Time, hover r3.Vec) {
	switch t.session.State {
	case StateNone:
		t.begin(now)
	case StateTap:
		t.session.StartTime = now
		t.session.travel = 0
	}
	t.session.lastHover = hover
}

func (t *Tracker) advance(now time.Time, hover r3.Vec) {
	switch t.session.State {
	case StateTap:
		t.session.travel += r3.Norm(r3.Sub(hover, t.session.lastHover))
		t.session.lastHover = hover

		if now.Sub(t.session.StartTime) > t.config.TapTime || t.session.travel > t.config.TapDistance {
			t.startGesture(now)
			return
		}

		for _, s := range t.order {
			ts := t.tracked[s]
			if ts.selected && !ts.Selectable {
				ts.Selectable = true
				ts.StartTime = now
				ts.StartPosition = ts.Position
			}
		}

	case StateGesture:
		t.updateGesture(now)
	}
}

func (t *Tracker) startGesture(now time.Time) {
	t.session.State = StateGesture
	t.session.PrioritySurface = t.arbitrate(StateGesture)
	t.session.TrackingSurface = t.oldestActive()

	var pos r2.Vec
	if ts, ok := t.tracked[t.session.TrackingSurface]; ok {
		pos = ts.Position
	}
	t.session.startPosition = pos
	t.session.lastPosition = pos

	t.emitGesture(Started, now.Sub(t.session.StartTime), r2.Vec{})
	t.session.lastEvent = now
}

func (t *Tracker) updateGesture(now time.Time) {
	track := t.oldestActive()
	if track == nil {
		return
	}
	pos := t.tracked[track].Position

	if track != t.session.TrackingSurface {
		t.session.TrackingSurface = track
		t.session.lastPosition = pos
		return
	}

	delta := r2.Sub(pos, t.session.lastPosition)
	t.session.CumulativeDirection = r2.Add(t.session.CumulativeDirection, delta)
	t.session.CumulativeDistance += r2.Norm(delta)
	t.session.lastPosition = pos

	t.emitGesture(Updated, now.Sub(t.session.lastEvent), delta)
	t.session.lastEvent = now
}

func (t *Tracker) release(now time.Time) {
	switch t.session.State {
	case StateTap:
		winner := t.arbitrate(StateTap)
		t.session.PrioritySurface = winner

		e := TapEvent{Surface: winner, Time: now}
		if winner != nil {
			e.Position = t.tracked[winner].StartPosition
		}
		if r, ok := winner.(Receiver); ok {
			r.ReceiveTap(e)
		}
		t.listeners.ReceiveTap(e)

	case StateGesture:
		t.emitGesture(Stopped, now.Sub(t.session.lastEvent), r2.Vec{})
	}
	t.reset()
}

func (t *Tracker) emitGesture(phase Phase, dt time.Duration, delta r2.Vec) {
	e := GestureEvent{
		Phase:               phase,
		Surface:             t.session.PrioritySurface,
		TimeDelta:           dt,
		StartTime:           t.session.StartTime,
		StartPosition:       t.session.startPosition,
		CumulativeDirection: t.session.CumulativeDirection,
		CumulativeDistance:  t.session.CumulativeDistance,
		DeltaDirection:      delta,
		TrackingSurface:     t.session.TrackingSurface,
		TrackingPosition:    t.session.lastPosition,
	}
	if r, ok := e.Surface.(Receiver); ok {
		r.ReceiveGesture(e)
	}
	t.listeners.ReceiveGesture(e)
}

// reset ends the session. Surfaces no longer active are forgotten; active
// ones stay tracked but lose eligibility and their scores.
func (t *Tracker) reset() {
	t.session = Session{}

	kept := t.order[:0]
	for _, s := range t.order {
		ts := t.tracked[s]
		if !ts.Active {
			delete(t.tracked, s)
			continue
		}
		ts.Selectable = false
		ts.Heuristic = math.Inf(1)
		ts.MinDistance = math.Inf(1)
		ts.StartTime = time.Time{}
		ts.StartPosition = r2.Vec{}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(t.order); i++ {
		t.order[i] = nil
	}
	t.order = kept
}

func (t *Tracker) anyActive() bool {
	for _, ts := range t.tracked {
		if ts.Active {
			return true
		}
	}
	return false
}

// oldestActive returns the surface that has been continuously active longest.
func (t *Tracker) oldestActive() detector.Surface {
	var best detector.Surface
	var bestTS *TrackingState
	for _, s := range t.order {
		ts := t.tracked[s]
		if !ts.Active {
			continue
		}
		if bestTS == nil || ts.ActiveSince.Before(bestTS.ActiveSince) ||
			(ts.ActiveSince.Equal(bestTS.ActiveSince) && ts.seq < bestTS.seq) {
			best, bestTS = s, ts
		}
	}
	return best
}

// arbitrate returns the eligible surface that handles state with the lowest
// (z-order, score), or nil when none does.
func (t *Tracker) arbitrate(state State) detector.Surface {
	var best detector.Surface
	var bestScore float64
	for _, s := range t.order {
		ts := t.tracked[s]
		if !ts.Selectable || !handles(s, state) {
			continue
		}
		score := ts.Heuristic
		if t.config.SimpleDistance {
			score = ts.MinDistance
		}
		if best == nil || s.ZOrder() < best.ZOrder() ||
			(s.ZOrder() == best.ZOrder() && score < bestScore) {
			best, bestScore = s, score
		}
	}
	return best
}
