package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/fleet-orchestrator/internal/events"
	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
	"github.com/signalsfoundry/fleet-orchestrator/timectrl"
)

const tracerName = "github.com/signalsfoundry/fleet-orchestrator/core"

// ScalePolicy triggers autoscaling of one service once cumulative traffic
// crosses a per-cycle threshold.
type ScalePolicy struct {
	ServiceName string
	// TrafficThreshold is multiplied by the cycle index; when cumulative
	// submitted requests exceed that product, the service is reconciled to
	// TargetInstances.
	TrafficThreshold uint64
	TargetInstances  int
}

// FleetMetrics receives engine-level measurements. Implemented by the
// observability collector; nil-safe via the engine's guards.
type FleetMetrics interface {
	ObserveCycle(d time.Duration)
	SetFleetCounts(pools, instances int)
	AddRequests(served, noPool int)
	AddHealingActions(applied, failed int)
}

// RoutingResult is the outcome of one submitted request. Exactly one of
// EdgeID/PoolID is set when Served; NoAvailablePool marks the expected
// everything-is-busy outcome, which is not an error.
type RoutingResult struct {
	PoolID          string `json:"pool_id,omitempty"`
	EdgeID          string `json:"edge_id,omitempty"`
	Served          bool   `json:"served"`
	NoAvailablePool bool   `json:"no_available_pool,omitempty"`
}

// CycleSummary reports what one management cycle did. Errors holds
// aggregated per-item failures; the cycle itself always runs to completion.
type CycleSummary struct {
	Cycle             uint64        `json:"cycle"`
	Requests          int           `json:"requests"`
	Served            int           `json:"served"`
	EdgeHits          int           `json:"edge_hits"`
	NoPool            int           `json:"no_pool"`
	HealingApplied    int           `json:"healing_applied"`
	HealingFailed     int           `json:"healing_failed"`
	MigrationsSkipped int           `json:"migrations_skipped"`
	ScaledService     string        `json:"scaled_service,omitempty"`
	ScaleTarget       int           `json:"scale_target,omitempty"`
	Errors            []string      `json:"errors,omitempty"`
	Duration          time.Duration `json:"duration_ns"`
}

// EngineConfig carries the optional collaborators and knobs of the engine.
type EngineConfig struct {
	// TrafficPerCycle is how many demand-sourced requests each cycle
	// submits before healing runs. Zero disables the traffic phase.
	TrafficPerCycle int
	ScalePolicy     *ScalePolicy
	Demand          DemandSource
	Edge            EdgeNetwork
	Feed            *events.Feed
	Metrics         FleetMetrics
}

// Engine runs the management cycle: traffic handling, then health
// monitoring and healing, then conditional autoscaling, strictly in that
// order. All state lives in the shared registry; the engine owns only
// counters and wiring.
type Engine struct {
	reg    *registry.Registry
	placer *PlacementEngine
	router *Router
	healer *HealingEngine
	scaler *Autoscaler
	log    logging.Logger
	cfg    EngineConfig

	cycleIndex     atomic.Uint64
	requestsTotal  atomic.Uint64
	requestsServed atomic.Uint64
}

// NewEngine wires the engine over its components.
func NewEngine(
	reg *registry.Registry,
	placer *PlacementEngine,
	router *Router,
	healer *HealingEngine,
	scaler *Autoscaler,
	log logging.Logger,
	cfg EngineConfig,
) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{
		reg:    reg,
		placer: placer,
		router: router,
		healer: healer,
		scaler: scaler,
		log:    log,
		cfg:    cfg,
	}
}

// InitializeFleet registers the given pools. A bad spec does not stop
// registration of the rest; all failures are joined into the returned
// error.
func (e *Engine) InitializeFleet(ctx context.Context, specs []model.PoolSpec) error {
	var errs []error
	for _, spec := range specs {
		if _, err := e.reg.RegisterPool(spec); err != nil {
			errs = append(errs, err)
		}
	}
	e.log.Info(ctx, "fleet initialized",
		logging.Int("pools", e.reg.PoolCount()),
		logging.Int("rejected", len(errs)),
	)
	return errors.Join(errs...)
}

// Place deploys replicas instances of a service. Exposed for the control
// API; delegates to the placement engine.
func (e *Engine) Place(ctx context.Context, serviceName string, replicas int) ([]string, error) {
	ids, err := e.placer.Place(ctx, serviceName, replicas)
	if err == nil && e.cfg.Feed != nil {
		e.cfg.Feed.Publish(events.Event{
			Kind:        events.KindPlacement,
			Time:        time.Now(),
			Service:     serviceName,
			InstanceIDs: ids,
		})
	}
	return ids, err
}

// Reconcile converges a service onto a target instance count.
func (e *Engine) Reconcile(ctx context.Context, serviceName string, target int) (ScaleResult, error) {
	return e.scaler.Reconcile(ctx, serviceName, target)
}

// SubmitRequest handles one request from origin. When an edge node covers
// the origin and serves the content, the request never reaches a pool;
// otherwise it is routed by latency among eligible pools.
func (e *Engine) SubmitRequest(ctx context.Context, origin, contentID string) RoutingResult {
	e.requestsTotal.Add(1)

	if e.cfg.Edge != nil && contentID != "" {
		if edgeID, ok := e.cfg.Edge.FindNearestEdge(origin); ok {
			if e.cfg.Edge.ServeFromEdge(edgeID, contentID) {
				e.requestsServed.Add(1)
				return RoutingResult{EdgeID: edgeID, Served: true}
			}
		}
	}

	poolID, ok := e.router.Route(origin)
	if !ok {
		return RoutingResult{NoAvailablePool: true}
	}
	e.requestsServed.Add(1)
	return RoutingResult{PoolID: poolID, Served: true}
}

// RunCycle executes one management cycle and returns its summary. Errors
// encountered for individual pools or services are aggregated into the
// summary; RunCycle itself fails only when the context is cancelled before
// the cycle starts.
func (e *Engine) RunCycle(ctx context.Context) (CycleSummary, error) {
	if err := ctx.Err(); err != nil {
		return CycleSummary{}, err
	}

	cycle := e.cycleIndex.Add(1)
	summary := CycleSummary{Cycle: cycle}
	start := time.Now()

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "fleet.cycle",
		trace.WithAttributes(attribute.Int64("cycle", int64(cycle))),
	)
	defer span.End()

	// Phase 1: traffic.
	if e.cfg.Demand != nil && e.cfg.TrafficPerCycle > 0 {
		for i := 0; i < e.cfg.TrafficPerCycle; i++ {
			origin, contentID := e.cfg.Demand.Next()
			res := e.SubmitRequest(ctx, origin, contentID)
			summary.Requests++
			switch {
			case res.EdgeID != "":
				summary.EdgeHits++
				summary.Served++
			case res.Served:
				summary.Served++
			case res.NoAvailablePool:
				summary.NoPool++
			}
		}
	}

	// Phase 2: monitoring and healing.
	report := e.healer.MonitorAndHeal(ctx)
	summary.HealingApplied = len(report.Actions)
	summary.HealingFailed = len(report.Failures)
	summary.MigrationsSkipped = report.SkippedMigrations
	for _, f := range report.Failures {
		summary.Errors = append(summary.Errors, fmt.Sprintf("healing %s %s: %v", f.Action.Kind, f.Action.SourceID, f.Err))
	}
	if e.cfg.Feed != nil {
		for i := range report.Actions {
			e.cfg.Feed.Publish(events.Event{
				Kind:    events.KindHealing,
				Time:    report.Actions[i].Timestamp,
				Healing: &report.Actions[i],
			})
		}
	}

	// Phase 3: conditional autoscaling.
	if sp := e.cfg.ScalePolicy; sp != nil && sp.TrafficThreshold > 0 {
		if e.requestsTotal.Load() > sp.TrafficThreshold*cycle {
			summary.ScaledService = sp.ServiceName
			summary.ScaleTarget = sp.TargetInstances
			if _, err := e.scaler.Reconcile(ctx, sp.ServiceName, sp.TargetInstances); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("autoscale %s: %v", sp.ServiceName, err))
			}
		}
	}

	summary.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("requests", summary.Requests),
		attribute.Int("healing_applied", summary.HealingApplied),
	)

	snap := e.Snapshot()
	if m := e.cfg.Metrics; m != nil {
		m.ObserveCycle(summary.Duration)
		m.SetFleetCounts(snap.PoolCount, snap.InstanceCount)
		m.AddRequests(summary.Served, summary.NoPool)
		m.AddHealingActions(summary.HealingApplied, summary.HealingFailed)
	}
	if e.cfg.Feed != nil {
		e.cfg.Feed.Publish(events.Event{
			Kind:     events.KindCycleSummary,
			Time:     time.Now(),
			Snapshot: &snap,
		})
	}

	e.log.Info(ctx, "management cycle complete",
		logging.Int("cycle", int(cycle)),
		logging.Int("requests", summary.Requests),
		logging.Int("no_pool", summary.NoPool),
		logging.Int("healing_applied", summary.HealingApplied),
		logging.Int("healing_failed", summary.HealingFailed),
	)
	return summary, nil
}

// Run drives cycles until ctx is cancelled. The pacer supplies the yield
// point between cycles; cancellation is only observed there, so no cycle
// is left half-applied.
func (e *Engine) Run(ctx context.Context, pacer timectrl.Pacer) error {
	defer pacer.Stop()
	for {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		if _, err := e.RunCycle(ctx); err != nil {
			return err
		}
	}
}

// Snapshot produces the read-only fleet summary for reporting consumers.
// Uptime is the mean pool uptime percentage, 100 for an empty fleet.
func (e *Engine) Snapshot() model.FleetSnapshot {
	pools := e.reg.ListPools(registry.PoolFilter{})
	uptime := 100.0
	if len(pools) > 0 {
		sum := 0.0
		for _, p := range pools {
			sum += p.UptimePct
		}
		uptime = sum / float64(len(pools))
	}
	return model.FleetSnapshot{
		PoolCount:      len(pools),
		InstanceCount:  e.reg.InstanceCount(""),
		RequestsServed: e.requestsServed.Load(),
		HealingActions: e.healer.ActionCount(),
		UptimePct:      uptime,
	}
}
