package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/fingertip/internal/detector"
	"github.com/ayusman/fingertip/internal/gesture"
)

const (
	eventBuffer  = 256
	writeTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Vec2 is a JSON-friendly 2D vector.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is the wire form of a tap or gesture event.
type Event struct {
	Type      string `json:"type"` // "tap" or "gesture"
	Phase     string `json:"phase,omitempty"`
	Surface   string `json:"surface,omitempty"`
	Timestamp int64  `json:"timestamp"`

	Position *Vec2 `json:"position,omitempty"`

	TimeDeltaMs         float64 `json:"time_delta_ms,omitempty"`
	StartPosition       *Vec2   `json:"start_position,omitempty"`
	CumulativeDirection *Vec2   `json:"cumulative_direction,omitempty"`
	CumulativeDistance  float64 `json:"cumulative_distance,omitempty"`
	DeltaDirection      *Vec2   `json:"delta_direction,omitempty"`
	TrackingSurface     string  `json:"tracking_surface,omitempty"`
	TrackingPosition    *Vec2   `json:"tracking_position,omitempty"`
}

func surfaceID(s detector.Surface) string {
	if s == nil {
		return ""
	}
	return s.ID()
}

// TapToEvent converts a tap into its wire form.
func TapToEvent(e gesture.TapEvent) Event {
	return Event{
		Type:      "tap",
		Surface:   surfaceID(e.Surface),
		Timestamp: e.Time.UnixMilli(),
		Position:  &Vec2{X: e.Position.X, Y: e.Position.Y},
	}
}

// GestureToEvent converts a gesture event into its wire form.
func GestureToEvent(e gesture.GestureEvent) Event {
	return Event{
		Type:                "gesture",
		Phase:               e.Phase.String(),
		Surface:             surfaceID(e.Surface),
		Timestamp:           e.StartTime.Add(e.TimeDelta).UnixMilli(),
		TimeDeltaMs:         float64(e.TimeDelta) / float64(time.Millisecond),
		StartPosition:       &Vec2{X: e.StartPosition.X, Y: e.StartPosition.Y},
		CumulativeDirection: &Vec2{X: e.CumulativeDirection.X, Y: e.CumulativeDirection.Y},
		CumulativeDistance:  e.CumulativeDistance,
		DeltaDirection:      &Vec2{X: e.DeltaDirection.X, Y: e.DeltaDirection.Y},
		TrackingSurface:     surfaceID(e.TrackingSurface),
		TrackingPosition:    &Vec2{X: e.TrackingPosition.X, Y: e.TrackingPosition.Y},
	}
}

// EventHub broadcasts interaction events to WebSocket clients. Publishing
// never blocks the frame loop: when the buffer is full, events are dropped.
type EventHub struct {
	events  chan []byte
	clients map[*websocket.Conn]chan []byte
	mu      sync.RWMutex
	dropped int
}

// NewEventHub creates a new EventHub. Run must be called to deliver events.
func NewEventHub() *EventHub {
	return &EventHub{
		events:  make(chan []byte, eventBuffer),
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Attach subscribes the hub to an interactor's listeners.
func (h *EventHub) Attach(l *gesture.Listeners) {
	l.OnTap(func(e gesture.TapEvent) { h.Publish(TapToEvent(e)) })
	l.OnGesture(func(e gesture.GestureEvent) { h.Publish(GestureToEvent(e)) })
}

// Publish queues an event for every connected client.
func (h *EventHub) Publish(e Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Printf("events: encode %s: %v", e.Type, err)
		return
	}

	select {
	case h.events <- msg:
	default:
		h.mu.Lock()
		h.dropped++
		n := h.dropped
		h.mu.Unlock()
		if n == 1 || n%100 == 0 {
			log.Printf("events: buffer full, %d events dropped", n)
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run fans queued events out to clients until ctx is done.
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.events:
			h.mu.RLock()
			for _, out := range h.clients {
				select {
				case out <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	out := make(chan []byte, eventBuffer)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg := <-out:
			if err := writeEvent(conn, msg); err != nil {
				log.Printf("websocket write error: %v", err)
				return
			}
		}
	}
}

// writeEvent sends one encoded event, bounded by writeTimeout.
func writeEvent(conn *websocket.Conn, msg []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}
