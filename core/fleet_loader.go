package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/fleet-orchestrator/model"
)

// Deployment is an initial service rollout declared by a scenario.
type Deployment struct {
	Service  string
	Replicas int
}

// FleetScenarioFile is the parsed form of a JSON fleet description: the
// pools to register, the services to deploy onto them, and an optional
// location-to-edge map for wiring a StaticEdge.
type FleetScenarioFile struct {
	Pools       []model.PoolSpec
	Deployments []Deployment
	Edges       map[string]string
}

// FleetScenario summarizes what ApplyScenario actually did. Mainly useful
// for logging from main().
type FleetScenario struct {
	PoolIDs     []string
	InstanceIDs []string
}

// internal JSON shapes - unexported so we are free to evolve them.
type fleetScenarioJSON struct {
	Pools       []poolSpecJSON    `json:"pools"`
	Deployments []deploymentJSON  `json:"deployments"`
	Edges       map[string]string `json:"edges"`
}

type poolSpecJSON struct {
	ID        string  `json:"id"`
	Provider  string  `json:"provider"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Capacity  int     `json:"capacity"`
	LatencyMS float64 `json:"latency_ms"`
}

type deploymentJSON struct {
	Service  string `json:"service"`
	Replicas int    `json:"replicas"`
}

// ParseFleetScenario reads a JSON fleet description from r. It fails only
// on JSON and structural errors; registry-level validation happens when
// the scenario is applied.
func ParseFleetScenario(r io.Reader) (*FleetScenarioFile, error) {
	var payload fleetScenarioJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("ParseFleetScenario: decode failed: %w", err)
	}
	if len(payload.Pools) == 0 {
		return nil, fmt.Errorf("ParseFleetScenario: scenario declares no pools")
	}

	out := &FleetScenarioFile{
		Pools: make([]model.PoolSpec, 0, len(payload.Pools)),
		Edges: payload.Edges,
	}
	for _, jp := range payload.Pools {
		if jp.ID == "" {
			return nil, fmt.Errorf("ParseFleetScenario: pool with empty id")
		}
		out.Pools = append(out.Pools, model.PoolSpec{
			ID:        jp.ID,
			Provider:  model.Provider(jp.Provider),
			Region:    jp.Region,
			Country:   jp.Country,
			Capacity:  jp.Capacity,
			LatencyMS: jp.LatencyMS,
		})
	}
	for _, dep := range payload.Deployments {
		if dep.Service == "" || dep.Replicas <= 0 {
			return nil, fmt.Errorf("ParseFleetScenario: bad deployment %q/%d", dep.Service, dep.Replicas)
		}
		out.Deployments = append(out.Deployments, Deployment{Service: dep.Service, Replicas: dep.Replicas})
	}
	return out, nil
}

// ApplyScenario registers the scenario's pools and performs its initial
// deployments on the engine.
func (e *Engine) ApplyScenario(ctx context.Context, file *FleetScenarioFile) (*FleetScenario, error) {
	if file == nil {
		return nil, fmt.Errorf("ApplyScenario: nil scenario")
	}
	if err := e.InitializeFleet(ctx, file.Pools); err != nil {
		return nil, fmt.Errorf("ApplyScenario: %w", err)
	}

	result := &FleetScenario{PoolIDs: make([]string, 0, len(file.Pools))}
	for _, spec := range file.Pools {
		result.PoolIDs = append(result.PoolIDs, spec.ID)
	}
	for _, dep := range file.Deployments {
		ids, err := e.Place(ctx, dep.Service, dep.Replicas)
		if err != nil {
			return nil, fmt.Errorf("ApplyScenario: deploy %q: %w", dep.Service, err)
		}
		result.InstanceIDs = append(result.InstanceIDs, ids...)
	}
	return result, nil
}

// LoadFleetScenario parses a scenario from r and applies it to the engine
// in one step, for callers that do not need the parsed form.
func LoadFleetScenario(ctx context.Context, engine *Engine, r io.Reader) (*FleetScenario, error) {
	if engine == nil {
		return nil, fmt.Errorf("LoadFleetScenario: engine is nil")
	}
	file, err := ParseFleetScenario(r)
	if err != nil {
		return nil, err
	}
	return engine.ApplyScenario(ctx, file)
}
