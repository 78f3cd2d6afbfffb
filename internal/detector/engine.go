package detector

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrNoStrategy is returned when an engine has no detection strategy.
	ErrNoStrategy = errors.New("detection strategy not set")
	// ErrNoRegistry is returned when an engine has no surface registry.
	ErrNoRegistry = errors.New("surface registry not set")
	// ErrReconfigureWhileRecording is returned when the strategy is swapped
	// while a recording session holds the engine.
	ErrReconfigureWhileRecording = errors.New("cannot change detection strategy while recording")
)

type recordListener struct {
	id int
	fn func(records []Record)
}

type abortListener struct {
	id int
	fn func(err error)
}

// Engine runs a detection Strategy against a Registry once per tick.
// Detect is called from the frame loop only. Subscriptions, recording locks
// and strategy swaps may come from any goroutine. Listeners are called
// without the engine's lock held.
type Engine struct {
	config     Config
	registry   *Registry
	candidates []Surface
	frame      Frame
	notify     []recordListener

	mu       sync.Mutex
	strategy Strategy
	records  []recordListener
	aborts   []abortListener
	nextID   int
	locks    int
}

// NewEngine creates an Engine. A missing strategy or registry is a
// configuration error.
func NewEngine(config Config, strategy Strategy, registry *Registry) (*Engine, error) {
	if strategy == nil {
		return nil, ErrNoStrategy
	}
	if registry == nil {
		return nil, ErrNoRegistry
	}
	return &Engine{
		config:   config,
		strategy: strategy,
		registry: registry,
		frame:    Frame{Infos: make(map[Surface]Info)},
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Strategy returns the active detection strategy.
func (e *Engine) Strategy() Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// Registry returns the candidate surface registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Detect runs one frame of detection from pose. The returned Frame is owned
// by the engine and overwritten by the next call.
func (e *Engine) Detect(pose Pose) *Frame {
	e.mu.Lock()
	strategy := e.strategy
	e.notify = append(e.notify[:0], e.records...)
	e.mu.Unlock()

	e.frame.reset(pose)
	e.candidates = e.registry.appendCandidates(e.candidates[:0], e.config.LayerMask)

	strategy.Detect(Input{
		Pose:     pose,
		Config:   e.config,
		Surfaces: e.candidates,
	}, &e.frame)

	for _, l := range e.notify {
		l.fn(e.frame.Records)
	}

	return &e.frame
}

// OnRecords registers fn to receive every frame's raw records, including
// frames without any. The slice is reused; fn must copy what it keeps.
// The returned function unsubscribes.
func (e *Engine) OnRecords(fn func(records []Record)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.records = append(e.records, recordListener{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.records {
			if l.id == id {
				e.records = append(e.records[:i], e.records[i+1:]...)
				return
			}
		}
	}
}

// RecordListeners returns the number of record subscribers.
func (e *Engine) RecordListeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// OnAbort registers fn to be told when a reconfiguration breaks a recording
// session. The returned function unsubscribes.
func (e *Engine) OnAbort(fn func(err error)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.aborts = append(e.aborts, abortListener{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.aborts {
			if l.id == id {
				e.aborts = append(e.aborts[:i], e.aborts[i+1:]...)
				return
			}
		}
	}
}

// Lock marks the engine as recording. Locks nest.
func (e *Engine) Lock() {
	e.mu.Lock()
	e.locks++
	e.mu.Unlock()
}

// Unlock releases one Lock.
func (e *Engine) Unlock() {
	e.mu.Lock()
	if e.locks > 0 {
		e.locks--
	}
	e.mu.Unlock()
}

// Locked reports whether a recording session holds the engine.
func (e *Engine) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locks > 0
}

// SetStrategy swaps the detection strategy. While recording, the swap is
// refused and every recording session is aborted.
func (e *Engine) SetStrategy(s Strategy) error {
	if s == nil {
		return ErrNoStrategy
	}
	e.mu.Lock()
	if e.locks == 0 {
		e.strategy = s
		e.mu.Unlock()
		return nil
	}
	err := fmt.Errorf("swap %s for %s: %w", e.strategy.Name(), s.Name(), ErrReconfigureWhileRecording)
	aborts := make([]abortListener, len(e.aborts))
	copy(aborts, e.aborts)
	e.mu.Unlock()

	log.Printf("detector: %v", err)
	for _, l := range aborts {
		l.fn(err)
	}
	return err
}
