// Package app wires detection, gesture tracking and calibration recording
// into a single interactor driven once per frame.
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/fingertip/internal/calibration"
	"github.com/ayusman/fingertip/internal/detector"
	"github.com/ayusman/fingertip/internal/gesture"
	"github.com/ayusman/fingertip/internal/rayangle"
)

// Frame loop timing.
const (
	// IdleFPS is the frame rate while nothing is hovered.
	IdleFPS = 10
	// ActiveFPS is the frame rate while a surface is hovered.
	ActiveFPS = 60
	// IdleTimeout is how long nothing must be hovered before the loop slows
	// back down to IdleFPS.
	IdleTimeout = 2 * time.Second
)

// Detection strategy names accepted by Config.
const (
	StrategyRaycast   = "raycast"
	StrategyProximity = "proximity"
)

var (
	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown detection strategy")
	// ErrNoTable is returned when a raycast interactor has no ray table.
	ErrNoTable = errors.New("ray angle table not set")
)

// Config holds configuration options for one interactor.
type Config struct {
	Detector detector.Config
	Gesture  gesture.Config

	// Key selects the segment and side whose rays the interactor casts.
	Key      rayangle.Key
	Strategy string

	IdleFPS   int
	ActiveFPS int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Detector:  detector.DefaultConfig(),
		Gesture:   gesture.DefaultConfig(),
		Key:       rayangle.Key{Segment: rayangle.SegmentDistal, Side: rayangle.SidePalmar},
		Strategy:  StrategyRaycast,
		IdleFPS:   IdleFPS,
		ActiveFPS: ActiveFPS,
	}
}

// Interactor is one hand's attach point: a detection engine feeding a
// gesture tracker.
type Interactor struct {
	config  Config
	engine  *detector.Engine
	tracker *gesture.Tracker

	mu         sync.Mutex
	table      *rayangle.Table
	lastActive time.Time
	recording  *calibration.Collector
}

// New creates an Interactor over the surfaces in registry. A raycast
// interactor needs a table holding rays for config.Key or its fallback side.
func New(config Config, table *rayangle.Table, registry *detector.Registry) (*Interactor, error) {
	strategy, err := newStrategy(config, table)
	if err != nil {
		return nil, err
	}

	engine, err := detector.NewEngine(config.Detector, strategy, registry)
	if err != nil {
		return nil, err
	}

	return &Interactor{
		config:  config,
		engine:  engine,
		tracker: gesture.NewTracker(config.Gesture),
		table:   table,
	}, nil
}

func newStrategy(config Config, table *rayangle.Table) (detector.Strategy, error) {
	switch config.Strategy {
	case StrategyRaycast, "":
		if table == nil {
			return nil, ErrNoTable
		}
		set, ok := table.AnglesFor(config.Key.Segment, config.Key.Side)
		if !ok {
			return nil, fmt.Errorf("no rays for %s: %w", config.Key, rayangle.ErrNoRays)
		}
		if set == nil {
			log.Printf("app: %s calibrated without rays, detection disabled", config.Key)
			return detector.NewIdleRaycastStrategy(), nil
		}
		return detector.NewRaycastStrategy(set)
	case StrategyProximity:
		return detector.NewProximityStrategy(), nil
	default:
		return nil, fmt.Errorf("%q: %w", config.Strategy, ErrUnknownStrategy)
	}
}

// Config returns the interactor configuration.
func (in *Interactor) Config() Config {
	return in.config
}

// Engine returns the detection engine.
func (in *Interactor) Engine() *detector.Engine {
	return in.engine
}

// Tracker returns the gesture tracker.
func (in *Interactor) Tracker() *gesture.Tracker {
	return in.tracker
}

// Listeners returns the interactor-level event listeners.
func (in *Interactor) Listeners() *gesture.Listeners {
	return in.tracker.Listeners()
}

// Table returns the ray table in use.
func (in *Interactor) Table() *rayangle.Table {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.table
}

// SetTable installs a new ray table, typically the output of a calibration
// run. If the table has no rays for the interactor's key, detection is
// disabled until a usable table is installed.
func (in *Interactor) SetTable(table *rayangle.Table) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	rc, ok := in.engine.Strategy().(*detector.RaycastStrategy)
	if !ok {
		in.table = table
		return nil
	}
	if in.engine.Locked() {
		return detector.ErrReconfigureWhileRecording
	}

	var set *rayangle.Set
	if table != nil {
		set, _ = table.AnglesFor(in.config.Key.Segment, in.config.Key.Side)
	}
	if set == nil {
		log.Printf("app: table has no rays for %s, detection disabled", in.config.Key)
	}
	rc.SetRays(set)
	in.table = table
	return nil
}

// SetStrategy swaps the detection strategy by name. It fails while a
// calibration session is recording, aborting that session.
func (in *Interactor) SetStrategy(name string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	cfg := in.config
	cfg.Strategy = name
	s, err := newStrategy(cfg, in.table)
	if err != nil {
		return err
	}
	if err := in.engine.SetStrategy(s); err != nil {
		return err
	}
	in.config = cfg
	return nil
}

// NewCollector starts recording this interactor's ray records for
// calibration.
func (in *Interactor) NewCollector() *calibration.Collector {
	return calibration.NewCollector(in.engine)
}

// BeginSession starts recording a calibration session for key. Only one
// session records at a time.
func (in *Interactor) BeginSession(key rayangle.Key) (uuid.UUID, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.recording != nil {
		if in.recording.Err() == nil {
			return uuid.Nil, calibration.ErrSessionOpen
		}
		// The previous session was aborted and never ended.
		in.recording = nil
	}
	c := calibration.NewCollector(in.engine)
	id, err := c.Begin(key)
	if err != nil {
		c.Cancel()
		return uuid.Nil, err
	}
	in.recording = c
	return id, nil
}

// EndSession closes the recording session and returns it. A session aborted
// by a strategy swap reports the abort.
func (in *Interactor) EndSession() (calibration.Session, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	c := in.recording
	if c == nil {
		return calibration.Session{}, calibration.ErrNoSession
	}
	in.recording = nil

	s, err := c.End()
	c.Cancel()
	return s, err
}

// CancelSession drops the recording session, if any, and reports whether
// there was one.
func (in *Interactor) CancelSession() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.recording == nil {
		return false
	}
	in.recording.Cancel()
	in.recording = nil
	return true
}

// Recording reports whether a calibration session is recording.
func (in *Interactor) Recording() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.recording != nil && in.recording.Recording()
}

// Step runs detection from pose, then advances the gesture tracker.
// The returned frame is valid until the next Step.
func (in *Interactor) Step(now time.Time, pose detector.Pose) *detector.Frame {
	in.mu.Lock()
	defer in.mu.Unlock()

	frame := in.engine.Detect(pose)
	in.tracker.Update(now, frame)
	if len(frame.Surfaces) > 0 {
		in.lastActive = now
	}
	return frame
}

// Lost tells the tracker the attach point is no longer tracked, releasing
// any contact in progress.
func (in *Interactor) Lost(now time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.tracker.Update(now, &detector.Frame{})
}

// Active reports whether anything was hovered within IdleTimeout of now.
func (in *Interactor) Active(now time.Time) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return !in.lastActive.IsZero() && now.Sub(in.lastActive) <= IdleTimeout
}
