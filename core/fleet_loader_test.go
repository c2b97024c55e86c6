package core

import (
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

const scenarioDoc = `{
  "pools": [
    {"id": "us-east-1", "provider": "aws", "region": "us-east", "country": "US", "capacity": 50000, "latency_ms": 12},
    {"id": "eu-west-1", "provider": "gcp", "region": "eu-west", "country": "IE", "capacity": 30000, "latency_ms": 25}
  ],
  "deployments": [
    {"service": "web", "replicas": 2}
  ],
  "edges": {"us-east": "edge-us", "eu-west": "edge-eu"}
}`

func TestParseFleetScenario(t *testing.T) {
	file, err := ParseFleetScenario(strings.NewReader(scenarioDoc))
	if err != nil {
		t.Fatalf("ParseFleetScenario: %v", err)
	}
	if len(file.Pools) != 2 {
		t.Fatalf("got %d pools, want 2", len(file.Pools))
	}
	p := file.Pools[0]
	if p.ID != "us-east-1" || p.Provider != model.ProviderAWS || p.Capacity != 50000 || p.LatencyMS != 12 {
		t.Errorf("first pool mismatch: %+v", p)
	}
	if len(file.Deployments) != 1 || file.Deployments[0].Service != "web" || file.Deployments[0].Replicas != 2 {
		t.Errorf("deployments mismatch: %+v", file.Deployments)
	}
	if file.Edges["eu-west"] != "edge-eu" {
		t.Errorf("edges mismatch: %+v", file.Edges)
	}
}

func TestParseFleetScenarioRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"not json":       `{pools: []}`,
		"no pools":       `{"pools": []}`,
		"empty pool id":  `{"pools": [{"id": "", "capacity": 10}]}`,
		"bad deployment": `{"pools": [{"id": "a", "capacity": 10}], "deployments": [{"service": "", "replicas": 1}]}`,
		"zero replicas":  `{"pools": [{"id": "a", "capacity": 10}], "deployments": [{"service": "web", "replicas": 0}]}`,
	}
	for name, doc := range cases {
		if _, err := ParseFleetScenario(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestApplyScenario(t *testing.T) {
	reg := registry.New(nil)
	e := newTestEngine(t, reg, EngineConfig{})

	result, err := LoadFleetScenario(context.Background(), e, strings.NewReader(scenarioDoc))
	if err != nil {
		t.Fatalf("LoadFleetScenario: %v", err)
	}
	if len(result.PoolIDs) != 2 {
		t.Errorf("pool IDs = %v, want 2 entries", result.PoolIDs)
	}
	if len(result.InstanceIDs) != 2 {
		t.Errorf("instance IDs = %v, want 2 entries", result.InstanceIDs)
	}
	if reg.PoolCount() != 2 {
		t.Errorf("pool count = %d, want 2", reg.PoolCount())
	}
	if got := reg.InstanceCount("web"); got != 2 {
		t.Errorf("web instances = %d, want 2", got)
	}
	// One instance per pool, each carrying one load unit.
	for _, id := range result.PoolIDs {
		p, err := reg.GetPool(id)
		if err != nil {
			t.Fatalf("GetPool(%s): %v", id, err)
		}
		if p.CurrentLoad != InstanceLoadUnit {
			t.Errorf("pool %s load = %d, want %d", id, p.CurrentLoad, InstanceLoadUnit)
		}
	}
}

func TestApplyScenarioRegistryRejection(t *testing.T) {
	reg := registry.New(nil)
	e := newTestEngine(t, reg, EngineConfig{})

	// Capacity validation happens at apply time, not parse time.
	doc := `{"pools": [{"id": "bad", "capacity": 0}]}`
	file, err := ParseFleetScenario(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseFleetScenario: %v", err)
	}
	if _, err := e.ApplyScenario(context.Background(), file); err == nil {
		t.Error("zero-capacity pool accepted at apply time")
	}
}
