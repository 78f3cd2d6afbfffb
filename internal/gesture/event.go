// Package gesture turns per-frame surface interactions into tap and gesture
// lifecycles, arbitrating between competing surfaces.
package gesture

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/fingertip/internal/detector"
)

// State is the classification of the ongoing interaction.
type State int

const (
	// StateNone means no interaction is in progress.
	StateNone State = iota
	// StateTap is a short, low-movement contact in progress.
	StateTap
	// StateGesture is a sustained or larger-movement contact.
	StateGesture
)

func (s State) String() string {
	switch s {
	case StateTap:
		return "tap"
	case StateGesture:
		return "gesture"
	default:
		return "none"
	}
}

// Phase is the lifecycle step a GestureEvent reports.
type Phase int

const (
	Started Phase = iota
	Updated
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Started:
		return "started"
	case Updated:
		return "updated"
	default:
		return "stopped"
	}
}

// TapEvent reports a completed tap. Surface is nil when no eligible surface
// handles taps.
type TapEvent struct {
	Surface  detector.Surface
	Time     time.Time
	Position r2.Vec // local position on Surface when it became eligible
}

// GestureEvent reports one step of a continuous gesture.
type GestureEvent struct {
	Phase   Phase
	Surface detector.Surface // receiver, nil when no surface handles gestures

	TimeDelta     time.Duration // since the previous event of this gesture
	StartTime     time.Time
	StartPosition r2.Vec

	CumulativeDirection r2.Vec
	CumulativeDistance  float64
	DeltaDirection      r2.Vec

	TrackingSurface  detector.Surface
	TrackingPosition r2.Vec
}

// Handler is implemented by surfaces that have an opinion on which
// interactions they handle. Surfaces that do not implement it handle nothing.
type Handler interface {
	HandlesGesture(state State) bool
}

// Receiver is implemented by surfaces that accept events.
type Receiver interface {
	ReceiveTap(e TapEvent)
	ReceiveGesture(e GestureEvent)
}

// Listeners is an explicit callback registry. It implements Handler and
// Receiver, so surfaces can embed it: a surface handles a state exactly when
// it has at least one listener for it.
type Listeners struct {
	taps     []func(TapEvent)
	gestures []func(GestureEvent)
}

// OnTap registers fn for tap events.
func (l *Listeners) OnTap(fn func(TapEvent)) {
	l.taps = append(l.taps, fn)
}

// OnGesture registers fn for gesture events.
func (l *Listeners) OnGesture(fn func(GestureEvent)) {
	l.gestures = append(l.gestures, fn)
}

// TapCount returns the number of tap listeners.
func (l *Listeners) TapCount() int { return len(l.taps) }

// GestureCount returns the number of gesture listeners.
func (l *Listeners) GestureCount() int { return len(l.gestures) }

// HandlesGesture implements Handler.
func (l *Listeners) HandlesGesture(state State) bool {
	switch state {
	case StateTap:
		return len(l.taps) > 0
	case StateGesture:
		return len(l.gestures) > 0
	default:
		return false
	}
}

// ReceiveTap implements Receiver.
func (l *Listeners) ReceiveTap(e TapEvent) {
	for _, fn := range l.taps {
		fn(e)
	}
}

// ReceiveGesture implements Receiver.
func (l *Listeners) ReceiveGesture(e GestureEvent) {
	for _, fn := range l.gestures {
		fn(e)
	}
}

func handles(s detector.Surface, state State) bool {
	h, ok := s.(Handler)
	return ok && h.HandlesGesture(state)
}
