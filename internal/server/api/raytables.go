package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/ayusman/fingertip/internal/rayangle"
	"github.com/ayusman/fingertip/internal/store"
)

// RayTableHandler handles HTTP requests for ray table resources.
type RayTableHandler struct {
	store    *store.Store
	activate func(*rayangle.Table) error
}

// NewRayTableHandler creates a new RayTableHandler. activate, when set, is
// called with a table as it becomes the active one.
func NewRayTableHandler(s *store.Store, activate func(*rayangle.Table) error) *RayTableHandler {
	return &RayTableHandler{store: s, activate: activate}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *RayTableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/raytables, /api/raytables/{id}, /api/raytables/{id}/active
	path := strings.TrimPrefix(r.URL.Path, "/api/raytables")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/active"); ok {
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.setActive(w, r, id)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createRayTableRequest struct {
	Name  string          `json:"name"`
	Table json.RawMessage `json:"table"`
}

type rayTableResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Active    bool            `json:"active"`
	Table     *rayangle.Table `json:"table,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type listRayTablesResponse struct {
	RayTables []rayTableResponse `json:"ray_tables"`
}

// toRayTableResponse converts a store.RayTable to a rayTableResponse.
func toRayTableResponse(s *store.Store, rt *store.RayTable) rayTableResponse {
	active, _ := s.Settings().Get(store.SettingActiveTable)
	return rayTableResponse{
		ID:        rt.ID,
		Name:      rt.Name,
		Active:    active == rt.ID,
		Table:     rt.Table,
		CreatedAt: formatTime(rt.CreatedAt),
		UpdatedAt: formatTime(rt.UpdatedAt),
	}
}

// list handles GET /api/raytables.
func (h *RayTableHandler) list(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.RayTables().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list ray tables")
		return
	}

	response := listRayTablesResponse{
		RayTables: make([]rayTableResponse, 0, len(tables)),
	}
	for _, rt := range tables {
		response.RayTables = append(response.RayTables, toRayTableResponse(h.store, rt))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/raytables/{id}.
func (h *RayTableHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	rt, err := h.store.RayTables().Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Ray table not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get ray table")
		return
	}

	writeJSON(w, http.StatusOK, toRayTableResponse(h.store, rt))
}

// create handles POST /api/raytables. The table is validated before it is
// stored; an existing name is replaced.
func (h *RayTableHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRayTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if len(req.Table) == 0 {
		writeError(w, http.StatusBadRequest, "Table is required")
		return
	}

	var table rayangle.Table
	if err := json.Unmarshal(req.Table, &table); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid table: "+err.Error())
		return
	}

	rt, err := h.store.RayTables().Save(req.Name, &table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save ray table")
		return
	}

	writeJSON(w, http.StatusCreated, toRayTableResponse(h.store, rt))
}

// delete handles DELETE /api/raytables/{id}.
func (h *RayTableHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.RayTables().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Ray table not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete ray table")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// setActive handles PUT /api/raytables/{id}/active.
func (h *RayTableHandler) setActive(w http.ResponseWriter, r *http.Request, id string) {
	rt, err := h.store.RayTables().Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Ray table not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get ray table")
		return
	}

	if h.activate != nil {
		if err := h.activate(rt.Table); err != nil {
			log.Printf("api: activating ray table %s: %v", rt.ID, err)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}

	if err := h.store.Settings().Set(store.SettingActiveTable, rt.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store active ray table")
		return
	}

	writeJSON(w, http.StatusOK, toRayTableResponse(h.store, rt))
}
