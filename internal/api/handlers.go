package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

type placeRequest struct {
	Service  string `json:"service"`
	Replicas int    `json:"replicas"`
}

type placeResponse struct {
	InstanceIDs []string `json:"instance_ids"`
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_argument", Message: "malformed JSON body"})
		return
	}
	if req.Service == "" || req.Replicas <= 0 {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_argument", Message: "service and positive replicas required"})
		return
	}

	ids, err := s.fleet.Place(r.Context(), req.Service, req.Replicas)
	if err != nil {
		code, body := toHTTPError(err)
		writeError(w, code, body)
		return
	}
	writeJSON(w, http.StatusCreated, placeResponse{InstanceIDs: ids})
}

type scaleRequest struct {
	Service string `json:"service"`
	Target  int    `json:"target"`
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_argument", Message: "malformed JSON body"})
		return
	}
	if req.Service == "" || req.Target < 0 {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_argument", Message: "service and non-negative target required"})
		return
	}

	result, err := s.fleet.Reconcile(r.Context(), req.Service, req.Target)
	if err != nil {
		code, body := toHTTPError(err)
		writeError(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type routeRequest struct {
	Origin    string `json:"origin"`
	ContentID string `json:"content_id,omitempty"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "invalid_argument", Message: "malformed JSON body"})
		return
	}

	// NoAvailablePool is an expected outcome, so it is a 200 with the
	// field set, never an error status.
	result := s.fleet.SubmitRequest(r.Context(), req.Origin, req.ContentID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := s.fleet.RunCycle(r.Context())
	if err != nil {
		code, body := toHTTPError(err)
		writeError(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Snapshot())
}

type poolJSON struct {
	ID            string  `json:"id"`
	Provider      string  `json:"provider"`
	Region        string  `json:"region"`
	Country       string  `json:"country,omitempty"`
	Capacity      int     `json:"capacity"`
	CurrentLoad   int     `json:"current_load"`
	Status        string  `json:"status"`
	LatencyMS     float64 `json:"latency_ms"`
	UptimePct     float64 `json:"uptime_pct"`
	InstanceCount int     `json:"instance_count"`
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	pools := s.pools.ListPools(registry.PoolFilter{})
	out := make([]poolJSON, 0, len(pools))
	for _, p := range pools {
		out = append(out, toPoolJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string][]poolJSON{"pools": out})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "poolID")
	pool, err := s.pools.GetPool(id)
	if err != nil {
		code, body := toHTTPError(err)
		writeError(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, toPoolJSON(pool))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func toPoolJSON(p model.Pool) poolJSON {
	return poolJSON{
		ID:            p.ID,
		Provider:      string(p.Provider),
		Region:        p.Region,
		Country:       p.Country,
		Capacity:      p.Capacity,
		CurrentLoad:   p.CurrentLoad,
		Status:        string(p.Status),
		LatencyMS:     p.LatencyMS,
		UptimePct:     p.UptimePct,
		InstanceCount: p.InstanceCount,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, body errorBody) {
	writeJSON(w, code, map[string]errorBody{"error": body})
}
