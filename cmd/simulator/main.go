package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/signalsfoundry/fleet-orchestrator/core"
	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// The simulator drives the control loop without any server surface: it
// loads a fleet scenario, submits seeded traffic, and runs a fixed number
// of accelerated management cycles, then prints a report.
func main() {
	scenarioPath := flag.String("scenario", "configs/fleet_scenario.json", "path to the fleet scenario JSON")
	cycles := flag.Int("cycles", 10, "number of management cycles to run")
	trafficPerCycle := flag.Int("traffic", 50000, "requests submitted per cycle")
	seed := flag.Int64("seed", 1, "demand generator seed")
	legacy := flag.Bool("legacy-unguarded", false, "reproduce legacy unguarded placement and migration")
	scaleService := flag.String("scale-service", "api-gateway", "service scaled when the traffic threshold trips (empty disables)")
	scaleTarget := flag.Int("scale-target", 15, "instance target for the scaled service")
	scaleThreshold := flag.Uint64("scale-threshold", 100000, "per-cycle cumulative traffic threshold")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	f, err := os.Open(*scenarioPath)
	if err != nil {
		panic(fmt.Errorf("failed to open fleet scenario %q: %w", *scenarioPath, err))
	}
	defer f.Close()

	scenario, err := core.ParseFleetScenario(f)
	if err != nil {
		panic(fmt.Errorf("failed to parse fleet scenario: %w", err))
	}

	placementPolicy := core.DefaultPlacementPolicy()
	healingPolicy := core.DefaultHealingPolicy()
	if *legacy {
		placementPolicy.CapacityCeiling = 0
		healingPolicy.UnguardedMigration = true
	}

	reg := registry.New(log)
	placer := core.NewPlacementEngine(reg, log, placementPolicy)
	router := core.NewRouter(reg, log, core.RoutingPolicy{})
	healer := core.NewHealingEngine(reg, log, healingPolicy, nil, nil)
	scaler := core.NewAutoscaler(reg, placer, log)

	poolIDs := make([]string, 0, len(scenario.Pools))
	for _, spec := range scenario.Pools {
		poolIDs = append(poolIDs, spec.ID)
	}

	cfg := core.EngineConfig{
		TrafficPerCycle: *trafficPerCycle,
		Demand:          core.NewSeededDemand(*seed, poolIDs, nil),
	}
	if *scaleService != "" {
		cfg.ScalePolicy = &core.ScalePolicy{
			ServiceName:      *scaleService,
			TrafficThreshold: *scaleThreshold,
			TargetInstances:  *scaleTarget,
		}
	}
	if len(scenario.Edges) > 0 {
		cfg.Edge = &core.StaticEdge{Nodes: scenario.Edges}
	}

	engine := core.NewEngine(reg, placer, router, healer, scaler, log, cfg)

	if _, err := engine.ApplyScenario(ctx, scenario); err != nil {
		panic(fmt.Errorf("failed to apply fleet scenario: %w", err))
	}

	for i := 0; i < *cycles; i++ {
		summary, err := engine.RunCycle(ctx)
		if err != nil {
			panic(fmt.Errorf("cycle %d: %w", i+1, err))
		}
		fmt.Printf("cycle %d: requests=%d served=%d no_pool=%d healed=%d skipped_migrations=%d\n",
			summary.Cycle, summary.Requests, summary.Served, summary.NoPool,
			summary.HealingApplied, summary.MigrationsSkipped)
	}

	printReport(engine, reg)
}

func printReport(engine *core.Engine, reg *registry.Registry) {
	snap := engine.Snapshot()

	fmt.Println()
	fmt.Println("==== Fleet report ====")
	fmt.Printf("Pools:           %d\n", snap.PoolCount)
	fmt.Printf("Instances:       %d\n", snap.InstanceCount)
	fmt.Printf("Requests served: %d\n", snap.RequestsServed)
	fmt.Printf("Healing actions: %d\n", snap.HealingActions)
	fmt.Printf("Mean uptime:     %.3f%%\n", snap.UptimePct)
	fmt.Println()

	for _, p := range reg.ListPools(registry.PoolFilter{}) {
		fmt.Printf("  %-24s %-8s load=%7d/%-7d status=%-8s latency=%6.1fms instances=%d\n",
			p.ID, p.Provider, p.CurrentLoad, p.Capacity, p.Status, p.LatencyMS, p.InstanceCount)
	}
}
