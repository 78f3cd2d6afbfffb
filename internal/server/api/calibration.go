package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/fingertip/internal/calibration"
	"github.com/ayusman/fingertip/internal/detector"
	"github.com/ayusman/fingertip/internal/rayangle"
	"github.com/ayusman/fingertip/internal/store"
)

// estimateTimeout bounds one estimation run started over HTTP.
const estimateTimeout = 30 * time.Second

// defaultPercentile is used when a percentile reduction names no percentile.
const defaultPercentile = 0.5

// SessionRecorder records calibration sessions on the running interactor.
type SessionRecorder interface {
	BeginSession(key rayangle.Key) (uuid.UUID, error)
	EndSession() (calibration.Session, error)
	CancelSession() bool
}

// CalibrationHandler handles HTTP requests for recording calibration
// sessions, the stored sessions and estimation runs over them.
type CalibrationHandler struct {
	store    *store.Store
	recorder SessionRecorder
}

// NewCalibrationHandler creates a new CalibrationHandler with the given store.
// Without a recorder, the recording endpoints report 503.
func NewCalibrationHandler(s *store.Store, recorder SessionRecorder) *CalibrationHandler {
	return &CalibrationHandler{store: s, recorder: recorder}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/calibration/sessions, /api/calibration/sessions/{begin,end,cancel},
	// /api/calibration/estimate
	path := strings.TrimPrefix(r.URL.Path, "/api/calibration")
	path = strings.Trim(path, "/")

	switch path {
	case "sessions/begin", "sessions/end", "sessions/cancel":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.recorder == nil {
			writeError(w, http.StatusServiceUnavailable, "Recording not available")
			return
		}
		switch path {
		case "sessions/begin":
			h.begin(w, r)
		case "sessions/end":
			h.end(w, r)
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.recorder.CancelSession()})
		}
	case "sessions":
		switch r.Method {
		case http.MethodGet:
			h.sessions(w, r)
		case http.MethodDelete:
			h.clear(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "estimate":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.estimate(w, r)
	default:
		http.NotFound(w, r)
	}
}

type keyFrames struct {
	rayangle.Key
	Sessions int `json:"sessions"`
	Frames   int `json:"frames"`
}

type sessionsResponse struct {
	Sessions int         `json:"sessions"`
	Keys     []keyFrames `json:"keys"`
}

type estimateRequest struct {
	Name         string   `json:"name"`
	MinFraction  *float64 `json:"min_fraction"`
	FallbackSide string   `json:"fallback_side"`
	Reducer      string   `json:"reducer"`
	Percentile   *float64 `json:"percentile"`
	Multiplier   float64  `json:"multiplier"`
}

type sessionResponse struct {
	ID     uuid.UUID    `json:"id"`
	Key    rayangle.Key `json:"key"`
	Frames int          `json:"frames"`
	Stored bool         `json:"stored"`
}

type estimateResponse struct {
	RayTable rayTableResponse `json:"ray_table"`
	Empty    []rayangle.Key   `json:"empty"`
}

// begin handles POST /api/calibration/sessions/begin.
func (h *CalibrationHandler) begin(w http.ResponseWriter, r *http.Request) {
	var key rayangle.Key
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if key.Segment == "" || key.Side == "" {
		writeError(w, http.StatusBadRequest, "Segment and side are required")
		return
	}

	id, err := h.recorder.BeginSession(key)
	if err != nil {
		if errors.Is(err, calibration.ErrSessionOpen) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Key: key})
}

// end handles POST /api/calibration/sessions/end. A session that recorded
// any frames is stored for later estimation.
func (h *CalibrationHandler) end(w http.ResponseWriter, r *http.Request) {
	session, err := h.recorder.EndSession()
	if err != nil {
		if errors.Is(err, calibration.ErrNoSession) || errors.Is(err, detector.ErrReconfigureWhileRecording) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := sessionResponse{ID: session.ID, Key: session.Key, Frames: len(session.Frames)}
	if len(session.Frames) > 0 {
		if err := h.store.Sessions().Create(&session); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to store session")
			return
		}
		response.Stored = true
	}
	writeJSON(w, http.StatusOK, response)
}

// sessions handles GET /api/calibration/sessions.
func (h *CalibrationHandler) sessions(w http.ResponseWriter, r *http.Request) {
	ds, err := h.store.Sessions().Dataset()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load sessions")
		return
	}

	response := sessionsResponse{Keys: make([]keyFrames, 0, len(ds))}
	for k, sessions := range ds {
		response.Sessions += len(sessions)
		response.Keys = append(response.Keys, keyFrames{Key: k, Sessions: len(sessions), Frames: ds.Frames(k)})
	}
	sortKeyFrames(response.Keys)

	writeJSON(w, http.StatusOK, response)
}

// clear handles DELETE /api/calibration/sessions.
func (h *CalibrationHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Sessions().DeleteAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// estimate handles POST /api/calibration/estimate. It reduces every stored
// session into a new ray table saved under the requested name.
func (h *CalibrationHandler) estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	est := calibration.DefaultEstimator()
	if req.MinFraction != nil {
		est.MinFraction = *req.MinFraction
	}
	if req.FallbackSide != "" {
		est.FallbackSide = rayangle.Side(req.FallbackSide)
	}

	rc := calibration.ReducerConfig{Kind: req.Reducer, Percentile: defaultPercentile, Multiplier: req.Multiplier}
	if req.Percentile != nil {
		rc.Percentile = *req.Percentile
	}
	if rc.Multiplier == 0 {
		rc.Multiplier = 1
	}
	reducer, err := rc.Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	est.Reducer = reducer

	ds, err := h.store.Sessions().Dataset()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load sessions")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), estimateTimeout)
	defer cancel()

	res, err := est.Estimate(ctx, ds)
	switch {
	case errors.Is(err, calibration.ErrEmptyDataset):
		writeError(w, http.StatusConflict, "No calibration sessions recorded")
		return
	case errors.Is(err, calibration.ErrInvalidFraction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rt, err := h.store.RayTables().Save(req.Name, res.Table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save ray table")
		return
	}

	response := estimateResponse{
		RayTable: toRayTableResponse(h.store, rt),
		Empty:    res.Empty,
	}
	if response.Empty == nil {
		response.Empty = []rayangle.Key{}
	}
	writeJSON(w, http.StatusCreated, response)
}

func sortKeyFrames(keys []keyFrames) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Segment != keys[j].Segment {
			return keys[i].Segment < keys[j].Segment
		}
		return keys[i].Side < keys[j].Side
	})
}
