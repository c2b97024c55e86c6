package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/fleet-orchestrator/core"
	"github.com/signalsfoundry/fleet-orchestrator/internal/api"
	"github.com/signalsfoundry/fleet-orchestrator/internal/config"
	"github.com/signalsfoundry/fleet-orchestrator/internal/events"
	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/internal/observability"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
	"github.com/signalsfoundry/fleet-orchestrator/timectrl"
)

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "failed to read config", logging.String("error", err.Error()))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewFleetCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	reg := registry.New(log)

	placementPolicy := core.DefaultPlacementPolicy()
	healingPolicy := core.DefaultHealingPolicy()
	if cfg.LegacyUnguarded {
		placementPolicy.CapacityCeiling = 0
		healingPolicy.UnguardedMigration = true
	}

	placer := core.NewPlacementEngine(reg, log, placementPolicy)
	router := core.NewRouter(reg, log, core.RoutingPolicy{})
	healer := core.NewHealingEngine(reg, log, healingPolicy, nil, nil)
	scaler := core.NewAutoscaler(reg, placer, log)

	feed := events.New(cfg.EventBuffer)
	defer feed.Close()
	go drainFeed(ctx, feed, log)

	var scalePolicy *core.ScalePolicy
	if cfg.ScaleService != "" {
		scalePolicy = &core.ScalePolicy{
			ServiceName:      cfg.ScaleService,
			TrafficThreshold: cfg.ScaleThreshold,
			TargetInstances:  cfg.ScaleTarget,
		}
	}

	scenario, err := parseScenarioFile(cfg.ScenarioPath)
	if err != nil {
		log.Error(ctx, "failed to read fleet scenario",
			logging.String("path", cfg.ScenarioPath),
			logging.String("error", err.Error()),
		)
		os.Exit(1)
	}

	poolIDs := make([]string, 0, len(scenario.Pools))
	for _, spec := range scenario.Pools {
		poolIDs = append(poolIDs, spec.ID)
	}

	engineCfg := core.EngineConfig{
		TrafficPerCycle: cfg.TrafficPerCycle,
		ScalePolicy:     scalePolicy,
		Feed:            feed,
		Metrics:         collector,
		Demand:          core.NewSeededDemand(cfg.DemandSeed, poolIDs, nil),
	}
	if len(scenario.Edges) > 0 {
		engineCfg.Edge = &core.StaticEdge{Nodes: scenario.Edges}
	}

	engine := core.NewEngine(reg, placer, router, healer, scaler, log, engineCfg)

	applied, err := engine.ApplyScenario(ctx, scenario)
	if err != nil {
		log.Error(ctx, "failed to apply fleet scenario",
			logging.String("path", cfg.ScenarioPath),
			logging.String("error", err.Error()),
		)
		os.Exit(1)
	}
	log.Info(ctx, "fleet scenario applied",
		logging.Int("pools", len(applied.PoolIDs)),
		logging.Int("instances", len(applied.InstanceIDs)),
	)

	server := api.New(log, engine, reg, collector, ":"+cfg.HTTPPort)

	loopCtx, stopLoop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stopLoop()

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	go func() {
		if err := engine.Run(loopCtx, timectrl.New(mode, cfg.CycleInterval)); err != nil && loopCtx.Err() == nil {
			log.Error(ctx, "control loop exited", logging.String("error", err.Error()))
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error(ctx, "control API exited", logging.String("error", err.Error()))
			stopLoop()
		}
	}()

	<-loopCtx.Done()
	log.Info(ctx, "shutting down fleetd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func parseScenarioFile(path string) (*core.FleetScenarioFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return core.ParseFleetScenario(f)
}

func drainFeed(ctx context.Context, feed *events.Feed, log logging.Logger) {
	for ev := range feed.Events() {
		switch {
		case ev.Snapshot != nil:
			log.Info(ctx, "fleet snapshot",
				logging.Int("pools", ev.Snapshot.PoolCount),
				logging.Int("instances", ev.Snapshot.InstanceCount),
				logging.Any("requests_served", ev.Snapshot.RequestsServed),
				logging.Any("healing_actions", ev.Snapshot.HealingActions),
				logging.Any("uptime_pct", ev.Snapshot.UptimePct),
			)
		case ev.Healing != nil:
			log.Debug(ctx, "healing event",
				logging.String("kind", string(ev.Healing.Kind)),
				logging.String("source", ev.Healing.SourceID),
			)
		}
	}
}
