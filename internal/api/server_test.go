package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fleet-orchestrator/core"
	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil)
	for _, spec := range []model.PoolSpec{
		{ID: "us-east-1", Provider: model.ProviderAWS, Region: "us-east", Capacity: 50000, LatencyMS: 12},
		{ID: "eu-west-1", Provider: model.ProviderGCP, Region: "eu-west", Capacity: 30000, LatencyMS: 25},
	} {
		_, err := reg.RegisterPool(spec)
		require.NoError(t, err)
	}

	placer := core.NewPlacementEngine(reg, nil, core.DefaultPlacementPolicy())
	router := core.NewRouter(reg, nil, core.RoutingPolicy{})
	healer := core.NewHealingEngine(reg, nil, core.DefaultHealingPolicy(), nil, nil)
	scaler := core.NewAutoscaler(reg, placer, nil)
	engine := core.NewEngine(reg, placer, router, healer, scaler, nil, core.EngineConfig{})

	return New(nil, engine, reg, nil, ":0"), reg
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodGet, "/-/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaceEndpoint(t *testing.T) {
	s, reg := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodPost, "/v1/placements", `{"service":"web","replicas":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		InstanceIDs []string `json:"instance_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.InstanceIDs, 2)
	require.Equal(t, 2, reg.InstanceCount("web"))
}

func TestPlaceEndpointValidation(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/placements", `{"service":"","replicas":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/placements", `{"service":"web","replicas":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/placements", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceEndpointInsufficientCapacity(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodPost, "/v1/placements", `{"service":"web","replicas":99}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Error errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "insufficient_capacity", resp.Error.Kind)
}

func TestScaleEndpoint(t *testing.T) {
	s, reg := newTestServer(t)
	h := s.Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/scale", `{"service":"web","target":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, reg.InstanceCount("web"))

	rec = doJSON(t, h, http.MethodPost, "/v1/scale", `{"service":"web","target":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.ScaleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 2, result.Before)
	require.Equal(t, 1, result.After)
	require.Equal(t, 1, reg.InstanceCount("web"))
}

func TestScaleEndpointValidation(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodPost, "/v1/scale", `{"service":"web","target":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodPost, "/v1/route", `{"origin":"us-east"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.RoutingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Served)
	require.Equal(t, "us-east-1", result.PoolID)
}

func TestRouteEndpointNoPool(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.SetStatus("us-east-1", model.StatusOffline))
	require.NoError(t, reg.SetStatus("eu-west-1", model.StatusOffline))

	// Shedding is a normal outcome, reported in-band at 200.
	rec := doJSON(t, s.Routes(), http.MethodPost, "/v1/route", `{"origin":"us-east"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.RoutingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.Served)
	require.True(t, result.NoAvailablePool)
}

func TestRunCycleEndpoint(t *testing.T) {
	s, reg := newTestServer(t)
	require.NoError(t, reg.SetStatus("eu-west-1", model.StatusDegraded))

	rec := doJSON(t, s.Routes(), http.MethodPost, "/v1/cycles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary core.CycleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, uint64(1), summary.Cycle)
	require.Equal(t, 1, summary.HealingApplied)

	p, err := reg.GetPool("eu-west-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusHealthy, p.Status)
}

func TestSnapshotEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodGet, "/v1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap model.FleetSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, 2, snap.PoolCount)
	require.Equal(t, 100.0, snap.UptimePct)
}

func TestListPoolsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodGet, "/v1/pools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Pools []poolJSON `json:"pools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Pools, 2)
	require.Equal(t, "eu-west-1", resp.Pools[0].ID)
}

func TestGetPoolEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()

	rec := doJSON(t, h, http.MethodGet, "/v1/pools/us-east-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pool poolJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))
	require.Equal(t, "us-east-1", pool.ID)
	require.Equal(t, "aws", pool.Provider)
	require.Equal(t, 50000, pool.Capacity)

	rec = doJSON(t, h, http.MethodGet, "/v1/pools/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
