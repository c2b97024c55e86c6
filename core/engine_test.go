package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/fleet-orchestrator/internal/events"
	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
	"github.com/signalsfoundry/fleet-orchestrator/timectrl"
)

// scriptedDemand replays a fixed request tape, cycling when exhausted.
type scriptedDemand struct {
	i    int
	tape [][2]string
}

func (d *scriptedDemand) Next() (string, string) {
	entry := d.tape[d.i%len(d.tape)]
	d.i++
	return entry[0], entry[1]
}

// recordingMetrics captures engine measurements for assertions.
type recordingMetrics struct {
	mu        sync.Mutex
	cycles    int
	pools     int
	instances int
	served    int
	noPool    int
	applied   int
	failed    int
}

func (m *recordingMetrics) ObserveCycle(time.Duration) {
	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()
}

func (m *recordingMetrics) SetFleetCounts(pools, instances int) {
	m.mu.Lock()
	m.pools, m.instances = pools, instances
	m.mu.Unlock()
}

func (m *recordingMetrics) AddRequests(served, noPool int) {
	m.mu.Lock()
	m.served += served
	m.noPool += noPool
	m.mu.Unlock()
}

func (m *recordingMetrics) AddHealingActions(applied, failed int) {
	m.mu.Lock()
	m.applied += applied
	m.failed += failed
	m.mu.Unlock()
}

func newTestEngine(t *testing.T, reg *registry.Registry, cfg EngineConfig) *Engine {
	t.Helper()
	placer := NewPlacementEngine(reg, nil, PlacementPolicy{CapacityCeiling: -1})
	stableIDs(placer)
	router := NewRouter(reg, nil, RoutingPolicy{})
	healer := NewHealingEngine(reg, nil, DefaultHealingPolicy(), nil, nil)
	scaler := NewAutoscaler(reg, placer, nil)
	return NewEngine(reg, placer, router, healer, scaler, nil, cfg)
}

func TestInitializeFleetJoinsFailures(t *testing.T) {
	reg := registry.New(nil)
	e := newTestEngine(t, reg, EngineConfig{})

	err := e.InitializeFleet(context.Background(), []model.PoolSpec{
		{ID: "good", Provider: model.ProviderAWS, Region: "r", Capacity: 100},
		{ID: "", Capacity: 100},
		{ID: "good", Provider: model.ProviderAWS, Region: "r", Capacity: 100},
	})
	if err == nil {
		t.Fatal("invalid specs accepted")
	}
	if reg.PoolCount() != 1 {
		t.Errorf("pool count = %d, want 1 (bad specs must not block good ones)", reg.PoolCount())
	}
}

func TestSubmitRequestEdgeFirst(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "p", 1000, 10)
	e := newTestEngine(t, reg, EngineConfig{
		Edge: &StaticEdge{Nodes: map[string]string{"us-east": "edge-1"}},
	})

	res := e.SubmitRequest(context.Background(), "us-east", "video-42")
	if !res.Served || res.EdgeID != "edge-1" || res.PoolID != "" {
		t.Errorf("edge hit not taken: %+v", res)
	}

	// No content ID means the edge is bypassed entirely.
	res = e.SubmitRequest(context.Background(), "us-east", "")
	if res.PoolID != "p" || res.EdgeID != "" {
		t.Errorf("content-less request should route to a pool: %+v", res)
	}
}

func TestSubmitRequestEdgeMissFallsThrough(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "p", 1000, 10)
	miss := func(edgeID, contentID string) bool { return false }
	e := newTestEngine(t, reg, EngineConfig{
		Edge: &StaticEdge{Nodes: map[string]string{"us-east": "edge-1"}, ServePolicy: miss},
	})

	res := e.SubmitRequest(context.Background(), "us-east", "video-42")
	if res.PoolID != "p" || !res.Served {
		t.Errorf("edge miss should fall through to routing: %+v", res)
	}
}

func TestSubmitRequestNoPool(t *testing.T) {
	reg := registry.New(nil)
	e := newTestEngine(t, reg, EngineConfig{})

	res := e.SubmitRequest(context.Background(), "anywhere", "")
	if res.Served || !res.NoAvailablePool {
		t.Errorf("empty fleet should report NoAvailablePool: %+v", res)
	}
}

func TestRunCyclePhases(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "hot", 100, 5)
	registerPool(t, reg, "cold", 10000, 50)
	if _, err := reg.AddLoad("hot", 96); err != nil {
		t.Fatalf("AddLoad: %v", err)
	}

	metrics := &recordingMetrics{}
	e := newTestEngine(t, reg, EngineConfig{
		TrafficPerCycle: 10,
		Demand:          &scriptedDemand{tape: [][2]string{{"us-east", ""}}},
		Metrics:         metrics,
	})

	summary, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.Cycle != 1 {
		t.Errorf("cycle = %d, want 1", summary.Cycle)
	}
	if summary.Requests != 10 || summary.Served != 10 {
		t.Errorf("requests/served = %d/%d, want 10/10", summary.Requests, summary.Served)
	}
	// hot (96/100) was overloaded at cycle start and must have shed load.
	if summary.HealingApplied != 1 {
		t.Errorf("healing applied = %d, want 1", summary.HealingApplied)
	}
	hot, _ := reg.GetPool("hot")
	if hot.CurrentLoad != 77 {
		t.Errorf("hot load after cycle = %d, want 77", hot.CurrentLoad)
	}

	if metrics.cycles != 1 || metrics.served != 10 || metrics.applied != 1 {
		t.Errorf("metrics not fed: %+v", metrics)
	}
	if metrics.pools != 2 {
		t.Errorf("metrics pools = %d, want 2", metrics.pools)
	}
}

func TestRunCycleScaleTrigger(t *testing.T) {
	reg := registry.New(nil)
	for _, id := range []string{"a", "b", "c"} {
		registerPool(t, reg, id, 1000000, 10)
	}
	e := newTestEngine(t, reg, EngineConfig{
		TrafficPerCycle: 20,
		Demand:          &scriptedDemand{tape: [][2]string{{"us-east", ""}}},
		ScalePolicy: &ScalePolicy{
			ServiceName:      "web",
			TrafficThreshold: 10,
			TargetInstances:  2,
		},
	})

	summary, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	// 20 cumulative requests > 10*1.
	if summary.ScaledService != "web" || summary.ScaleTarget != 2 {
		t.Errorf("scale trigger missed: %+v", summary)
	}
	if got := reg.InstanceCount("web"); got != 2 {
		t.Errorf("web instances = %d, want 2", got)
	}
}

func TestRunCycleScaleBelowThreshold(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "a", 1000000, 10)
	e := newTestEngine(t, reg, EngineConfig{
		TrafficPerCycle: 5,
		Demand:          &scriptedDemand{tape: [][2]string{{"us-east", ""}}},
		ScalePolicy: &ScalePolicy{
			ServiceName:      "web",
			TrafficThreshold: 10,
			TargetInstances:  1,
		},
	})

	summary, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if summary.ScaledService != "" {
		t.Errorf("scale fired below threshold: %+v", summary)
	}
	if got := reg.InstanceCount("web"); got != 0 {
		t.Errorf("web instances = %d, want 0", got)
	}
}

func TestRunCyclePublishesEvents(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "sick", 1000, 10)
	if err := reg.SetStatus("sick", model.StatusDegraded); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	feed := events.New(16)
	defer feed.Close()
	e := newTestEngine(t, reg, EngineConfig{Feed: feed})

	if _, err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	var kinds []events.Kind
	for len(kinds) < 2 {
		select {
		case ev := <-feed.Events():
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", kinds)
		}
	}
	if kinds[0] != events.KindHealing || kinds[1] != events.KindCycleSummary {
		t.Errorf("event kinds = %v, want [healing cycle_summary]", kinds)
	}
}

func TestRunCycleCancelledContext(t *testing.T) {
	reg := registry.New(nil)
	e := newTestEngine(t, reg, EngineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.RunCycle(ctx); err == nil {
		t.Error("cancelled context accepted")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "a", 1000, 10)
	e := newTestEngine(t, reg, EngineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, timectrl.New(timectrl.Accelerated, 0))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Run returned nil after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if e.Snapshot().PoolCount != 1 {
		t.Error("snapshot lost pool state")
	}
}

func TestSnapshotAggregates(t *testing.T) {
	reg := registry.New(nil)
	registerPool(t, reg, "a", 1000, 10)
	registerPool(t, reg, "b", 1000, 10)
	if err := reg.SetUptime("b", 90); err != nil {
		t.Fatalf("SetUptime: %v", err)
	}
	e := newTestEngine(t, reg, EngineConfig{})

	if _, err := e.Place(context.Background(), "web", 2); err != nil {
		t.Fatalf("Place: %v", err)
	}
	e.SubmitRequest(context.Background(), "us-east", "")

	snap := e.Snapshot()
	if snap.PoolCount != 2 || snap.InstanceCount != 2 {
		t.Errorf("pools/instances = %d/%d, want 2/2", snap.PoolCount, snap.InstanceCount)
	}
	if snap.RequestsServed != 1 {
		t.Errorf("requests served = %d, want 1", snap.RequestsServed)
	}
	if snap.UptimePct != 95 {
		t.Errorf("uptime = %v, want 95 (mean of 100 and 90)", snap.UptimePct)
	}
}

func TestSnapshotEmptyFleet(t *testing.T) {
	e := newTestEngine(t, registry.New(nil), EngineConfig{})
	snap := e.Snapshot()
	if snap.UptimePct != 100 {
		t.Errorf("empty-fleet uptime = %v, want 100", snap.UptimePct)
	}
	if snap.PoolCount != 0 || snap.InstanceCount != 0 {
		t.Errorf("empty fleet reported state: %+v", snap)
	}
}
