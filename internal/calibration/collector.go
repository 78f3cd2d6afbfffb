// Package calibration records raw ray hits during interaction sessions and
// estimates refined ray angle tables from them.
package calibration

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/fingertip/internal/detector"
	"github.com/ayusman/fingertip/internal/rayangle"
)

var (
	// ErrSessionOpen is returned when a session is started or the dataset
	// is taken while another session is still open.
	ErrSessionOpen = errors.New("calibration session already open")
	// ErrNoSession is returned when ending a session that was never begun.
	ErrNoSession = errors.New("no calibration session open")
	// ErrConsumed is returned when the dataset was already handed over.
	ErrConsumed = errors.New("calibration dataset already consumed")
	// ErrCancelled is returned by a collector after Cancel.
	ErrCancelled = errors.New("calibration collector cancelled")
)

// Session is one recorded interaction: the frames of ray records captured
// between Begin and End, tagged with the segment they calibrate.
type Session struct {
	ID     uuid.UUID           `json:"id"`
	Key    rayangle.Key        `json:"key"`
	Frames [][]detector.Record `json:"frames"`
}

// Dataset groups sessions by segment key.
type Dataset map[rayangle.Key][]Session

// Add appends s under its key.
func (d Dataset) Add(s Session) {
	d[s.Key] = append(d[s.Key], s)
}

// Frames returns the number of frames recorded for k.
func (d Dataset) Frames(k rayangle.Key) int {
	n := 0
	for _, s := range d[k] {
		n += len(s.Frames)
	}
	return n
}

// Collector subscribes to an engine's records and groups them into sessions.
// Only front-side hits (distance >= 0) are kept, and frames without any are
// skipped.
type Collector struct {
	mu      sync.Mutex
	engine  *detector.Engine
	dataset Dataset
	current *Session
	paused  bool
	err     error

	consumed     bool
	unsubRecords func()
	unsubAbort   func()
}

// NewCollector creates a Collector listening to engine.
func NewCollector(engine *detector.Engine) *Collector {
	c := &Collector{
		engine:  engine,
		dataset: make(Dataset),
	}
	c.unsubRecords = engine.OnRecords(c.record)
	c.unsubAbort = engine.OnAbort(c.abort)
	return c
}

// Begin opens a session for key. The engine refuses strategy changes until
// the session ends.
func (c *Collector) Begin(key rayangle.Key) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return uuid.Nil, err
	}
	if c.current != nil {
		return uuid.Nil, ErrSessionOpen
	}

	c.current = &Session{ID: uuid.New(), Key: key}
	c.engine.Lock()
	return c.current.ID, nil
}

// End closes the open session and keeps it when it recorded anything.
func (c *Collector) End() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return Session{}, err
	}
	if c.current == nil {
		return Session{}, ErrNoSession
	}

	s := *c.current
	c.current = nil
	c.engine.Unlock()

	if len(s.Frames) > 0 {
		c.dataset.Add(s)
	}
	return s, nil
}

// SetPaused suspends or resumes recording without closing the session.
func (c *Collector) SetPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// Paused reports whether recording is suspended.
func (c *Collector) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Recording reports whether a session is open.
func (c *Collector) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Cancel unsubscribes from the engine and drops the open session. Sessions
// already ended stay in the dataset.
func (c *Collector) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = ErrCancelled
	}
	c.detach()
}

// Err returns the error that stopped the collector, if any.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Dataset hands the recorded sessions over. It succeeds once; the collector
// keeps no reference to the returned data.
func (c *Collector) Dataset() (Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil && !errors.Is(c.err, ErrCancelled) {
		return nil, c.err
	}
	if c.consumed {
		return nil, ErrConsumed
	}
	if c.current != nil {
		return nil, ErrSessionOpen
	}

	d := c.dataset
	c.dataset = nil
	c.consumed = true
	return d, nil
}

func (c *Collector) usable() error {
	if c.err != nil {
		return c.err
	}
	if c.consumed {
		return ErrConsumed
	}
	return nil
}

func (c *Collector) record(records []detector.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.paused {
		return
	}

	var frame []detector.Record
	for _, r := range records {
		if r.Distance >= 0 {
			frame = append(frame, r)
		}
	}
	if len(frame) > 0 {
		c.current.Frames = append(c.current.Frames, frame)
	}
}

func (c *Collector) abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		log.Printf("calibration: aborting session %s for %s: %v", c.current.ID, c.current.Key, err)
	}
	c.err = fmt.Errorf("calibration aborted: %w", err)
	c.detach()
}

// detach must be called with mu held.
func (c *Collector) detach() {
	if c.current != nil {
		c.current = nil
		c.engine.Unlock()
	}
	if c.unsubRecords != nil {
		c.unsubRecords()
		c.unsubRecords = nil
	}
	if c.unsubAbort != nil {
		c.unsubAbort()
		c.unsubAbort = nil
	}
}
