package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// Healing defaults. The overload threshold doubles as the migration guard:
// a guarded migration is rejected when it would push the target above it.
const (
	DefaultOverloadThreshold   = 0.95
	DefaultMigrationFraction   = 0.20
	DefaultRecoveryUptimePct   = 99.9
	DefaultInstanceHealthFloor = 0.5
	DefaultHealRetryAttempts   = 3
)

// HealingPolicy tunes the monitor sweeps.
type HealingPolicy struct {
	OverloadThreshold   float64
	MigrationFraction   float64
	RecoveryUptimePct   float64
	InstanceHealthFloor float64
	// UnguardedMigration restores the legacy behavior of migrating load
	// without checking that the target has headroom, which can push the
	// target itself into overload.
	UnguardedMigration bool
	// RetryAttempts bounds how often a failed action application is
	// retried before it is reported as a cycle failure.
	RetryAttempts uint
}

// DefaultHealingPolicy returns the guarded policy.
func DefaultHealingPolicy() HealingPolicy {
	return HealingPolicy{
		OverloadThreshold:   DefaultOverloadThreshold,
		MigrationFraction:   DefaultMigrationFraction,
		RecoveryUptimePct:   DefaultRecoveryUptimePct,
		InstanceHealthFloor: DefaultInstanceHealthFloor,
		RetryAttempts:       DefaultHealRetryAttempts,
	}
}

// ActionApplier applies one healing action to the fleet. Appliers may
// fail; the engine retries with bounded attempts before giving up on the
// individual action.
type ActionApplier interface {
	Apply(ctx context.Context, action model.HealingAction) error
}

// Clock supplies timestamps for audit records. Injectable for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// HealingFailure records an action that could not be applied after all
// retry attempts.
type HealingFailure struct {
	Action model.HealingAction
	Err    error
}

// HealingReport summarizes one monitor sweep.
type HealingReport struct {
	Actions  []model.HealingAction
	Failures []HealingFailure
	// SkippedMigrations counts overloads left in place because every
	// candidate target lacked headroom under the guard.
	SkippedMigrations int
}

// HealingEngine detects overload and degradation across the fleet and
// issues corrective actions. One MonitorAndHeal call is one monitoring
// cycle: overloaded pools shed load first, then non-Healthy pools recover,
// then unhealthy instances recover. An error on one pool or instance never
// stops the sweep; failures are aggregated into the report.
type HealingEngine struct {
	reg     *registry.Registry
	log     logging.Logger
	clock   Clock
	applier ActionApplier
	policy  HealingPolicy

	actionsTotal atomic.Uint64

	mu    sync.Mutex
	audit []model.HealingAction
}

// NewHealingEngine builds the engine. A nil applier gets the
// registry-backed default; a nil clock gets the system clock.
func NewHealingEngine(reg *registry.Registry, log logging.Logger, policy HealingPolicy, applier ActionApplier, clock Clock) *HealingEngine {
	if log == nil {
		log = logging.Noop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	e := &HealingEngine{
		reg:    reg,
		log:    log,
		clock:  clock,
		policy: policy,
	}
	if applier == nil {
		applier = &registryApplier{reg: reg, policy: policy}
	}
	e.applier = applier
	return e
}

// ActionCount returns the monotonic count of successfully applied healing
// actions since startup.
func (e *HealingEngine) ActionCount() uint64 { return e.actionsTotal.Load() }

// AuditTrail returns a copy of the append-only action history.
func (e *HealingEngine) AuditTrail() []model.HealingAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.HealingAction, len(e.audit))
	copy(out, e.audit)
	return out
}

// MonitorAndHeal runs one monitoring cycle over the whole fleet.
func (e *HealingEngine) MonitorAndHeal(ctx context.Context) HealingReport {
	var report HealingReport

	// 1) Overloaded pools shed 20% of their load to the least-loaded pool.
	for _, pool := range e.reg.ListPools(registry.PoolFilter{}) {
		if !pool.Overloaded(e.policy.OverloadThreshold) {
			continue
		}
		e.log.Warn(ctx, "pool overloaded",
			logging.String("pool_id", pool.ID),
			logging.Int("current_load", pool.CurrentLoad),
			logging.Int("capacity", pool.Capacity),
		)
		e.healOverload(ctx, pool, &report)
	}

	// 2) Non-Healthy pools are corrected exactly once per cycle.
	for _, pool := range e.reg.ListPools(registry.PoolFilter{}) {
		if pool.Status == model.StatusHealthy {
			continue
		}
		e.log.Warn(ctx, "pool unhealthy",
			logging.String("pool_id", pool.ID),
			logging.String("status", string(pool.Status)),
		)
		e.apply(ctx, model.HealingAction{
			Kind:      model.HealingPoolRecovery,
			SourceID:  pool.ID,
			Timestamp: e.clock.Now(),
		}, &report)
	}

	// 3) Instances below the health floor are reset to baseline.
	for _, inst := range e.reg.ListInstances("") {
		if inst.Health >= e.policy.InstanceHealthFloor {
			continue
		}
		e.log.Warn(ctx, "instance unhealthy",
			logging.String("instance_id", inst.ID),
			logging.Any("health", inst.Health),
		)
		e.apply(ctx, model.HealingAction{
			Kind:      model.HealingInstanceRecovery,
			SourceID:  inst.ID,
			Timestamp: e.clock.Now(),
		}, &report)
	}

	return report
}

func (e *HealingEngine) healOverload(ctx context.Context, source model.Pool, report *HealingReport) {
	// Migration target: the pool with the lowest load ratio, excluding the
	// source. Ties resolve to the lowest pool ID because candidates arrive
	// ID-ordered.
	candidates := e.reg.ListPools(registry.PoolFilter{ExcludeID: source.ID})
	if len(candidates) == 0 {
		report.SkippedMigrations++
		return
	}
	target := candidates[0]
	for _, p := range candidates[1:] {
		if p.LoadRatio() < target.LoadRatio() {
			target = p
		}
	}

	amount := int(float64(source.CurrentLoad) * e.policy.MigrationFraction)
	if amount <= 0 {
		return
	}

	if !e.policy.UnguardedMigration {
		after := target.CurrentLoad + amount
		if float64(after) > e.policy.OverloadThreshold*float64(target.Capacity) {
			e.log.Warn(ctx, "migration skipped, target lacks headroom",
				logging.String("source_pool", source.ID),
				logging.String("target_pool", target.ID),
				logging.Int("amount", amount),
			)
			report.SkippedMigrations++
			return
		}
	}

	e.apply(ctx, model.HealingAction{
		Kind:         model.HealingLoadMigration,
		SourceID:     source.ID,
		TargetPoolID: target.ID,
		Magnitude:    amount,
		Timestamp:    e.clock.Now(),
	}, report)
}

// apply runs one action through the applier with bounded retries, then
// records it in the audit trail on success.
func (e *HealingEngine) apply(ctx context.Context, action model.HealingAction, report *HealingReport) {
	attempts := e.policy.RetryAttempts
	if attempts == 0 {
		attempts = DefaultHealRetryAttempts
	}

	err := retry.Do(
		func() error { return e.applier.Apply(ctx, action) },
		retry.Attempts(attempts),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		e.log.Error(ctx, "healing action failed",
			logging.String("kind", string(action.Kind)),
			logging.String("source", action.SourceID),
			logging.String("error", err.Error()),
		)
		report.Failures = append(report.Failures, HealingFailure{Action: action, Err: err})
		return
	}

	e.actionsTotal.Add(1)
	e.mu.Lock()
	e.audit = append(e.audit, action)
	e.mu.Unlock()
	report.Actions = append(report.Actions, action)

	e.log.Info(ctx, "healing action applied",
		logging.String("kind", string(action.Kind)),
		logging.String("source", action.SourceID),
		logging.String("target", action.TargetPoolID),
		logging.Int("magnitude", action.Magnitude),
	)
}

// registryApplier is the default in-process applier: it mutates the
// registry directly and fails only on unknown IDs.
type registryApplier struct {
	reg    *registry.Registry
	policy HealingPolicy
}

func (a *registryApplier) Apply(_ context.Context, action model.HealingAction) error {
	switch action.Kind {
	case model.HealingLoadMigration:
		if _, err := a.reg.AddLoad(action.SourceID, -action.Magnitude); err != nil {
			return err
		}
		_, err := a.reg.AddLoad(action.TargetPoolID, action.Magnitude)
		return err
	case model.HealingPoolRecovery:
		if err := a.reg.SetStatus(action.SourceID, model.StatusHealthy); err != nil {
			return err
		}
		return a.reg.SetUptime(action.SourceID, a.policy.RecoveryUptimePct)
	case model.HealingInstanceRecovery:
		return a.reg.SetInstanceHealth(action.SourceID, 1.0, model.BaselineCPUPct, model.BaselineMemoryPct)
	default:
		return fmt.Errorf("unknown healing action kind %q", action.Kind)
	}
}
