package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// InstanceLoadUnit is the load every placed instance adds to its pool.
const InstanceLoadUnit = 1000

// DefaultPlacementCeiling rejects placement onto pools already at or above
// this load ratio, so a placement cannot immediately push a pool into the
// healing path.
const DefaultPlacementCeiling = 0.95

var ErrInsufficientCapacity = errors.New("insufficient capacity")

// PlacementPolicy tunes how the engine selects pools.
type PlacementPolicy struct {
	// LoadUnit is the per-instance load increment. Zero means
	// InstanceLoadUnit.
	LoadUnit int
	// CapacityCeiling excludes pools at or above this load ratio from
	// selection. Zero or negative disables the ceiling entirely, which
	// reproduces the legacy unguarded behavior of placing onto any pool
	// regardless of load.
	CapacityCeiling float64
}

// DefaultPlacementPolicy is the guarded policy new deployments get.
func DefaultPlacementPolicy() PlacementPolicy {
	return PlacementPolicy{
		LoadUnit:        InstanceLoadUnit,
		CapacityCeiling: DefaultPlacementCeiling,
	}
}

func (p PlacementPolicy) loadUnit() int {
	if p.LoadUnit <= 0 {
		return InstanceLoadUnit
	}
	return p.LoadUnit
}

// PlacementEngine decides which pools receive new service instances and
// records them in the registry.
type PlacementEngine struct {
	reg    *registry.Registry
	log    logging.Logger
	policy PlacementPolicy

	// newID generates instance IDs; injectable so tests get stable IDs.
	newID func(serviceName, poolID string) string
}

// NewPlacementEngine builds an engine over the shared registry.
func NewPlacementEngine(reg *registry.Registry, log logging.Logger, policy PlacementPolicy) *PlacementEngine {
	if log == nil {
		log = logging.Noop()
	}
	return &PlacementEngine{
		reg:    reg,
		log:    log,
		policy: policy,
		newID: func(serviceName, poolID string) string {
			suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
			return fmt.Sprintf("%s-%s-%s", serviceName, poolID, suffix)
		},
	}
}

// SetIDGenerator overrides instance ID generation. Intended for tests.
func (e *PlacementEngine) SetIDGenerator(fn func(serviceName, poolID string) string) {
	if fn != nil {
		e.newID = fn
	}
}

// Place creates replicas instances of serviceName, one per selected pool,
// and returns the new instance IDs. Selection is deterministic: pools are
// ordered by load ratio ascending with ties broken by pool ID ascending,
// and the first replicas eligible pools win. Each placement adds the
// per-instance load unit to its pool.
//
// It fails with ErrInsufficientCapacity when fewer than replicas pools are
// eligible under the capacity ceiling. No instances are created in that
// case.
func (e *PlacementEngine) Place(ctx context.Context, serviceName string, replicas int) ([]string, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("place: empty service name")
	}
	if replicas <= 0 {
		return nil, fmt.Errorf("place %q: replicas must be positive, got %d", serviceName, replicas)
	}

	candidates := e.reg.ListPools(registry.PoolFilter{})
	if e.policy.CapacityCeiling > 0 {
		eligible := candidates[:0]
		for _, p := range candidates {
			if p.LoadRatio() < e.policy.CapacityCeiling {
				eligible = append(eligible, p)
			}
		}
		candidates = eligible
	}
	if len(candidates) < replicas {
		return nil, fmt.Errorf("%w: need %d pools, %d eligible", ErrInsufficientCapacity, replicas, len(candidates))
	}

	// ListPools already orders by ID; a stable sort on ratio keeps that
	// ordering as the tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LoadRatio() < candidates[j].LoadRatio()
	})

	ids := make([]string, 0, replicas)
	for _, pool := range candidates[:replicas] {
		id := e.newID(serviceName, pool.ID)
		if _, err := e.reg.CreateInstance(id, serviceName, pool.ID); err != nil {
			return ids, fmt.Errorf("place %q on %q: %w", serviceName, pool.ID, err)
		}
		if _, err := e.reg.AddLoad(pool.ID, e.policy.loadUnit()); err != nil {
			return ids, fmt.Errorf("place %q on %q: %w", serviceName, pool.ID, err)
		}
		ids = append(ids, id)
	}

	e.log.Info(ctx, "placed service instances",
		logging.String("service", serviceName),
		logging.Int("replicas", len(ids)),
	)
	return ids, nil
}

// Remove deletes the given instances and releases their load, clamped at
// zero. Unknown instances are reported but do not stop the removal of the
// rest.
func (e *PlacementEngine) Remove(ctx context.Context, instanceIDs []string) error {
	var errs []error
	for _, id := range instanceIDs {
		inst, err := e.reg.DeleteInstance(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := e.reg.AddLoad(inst.PoolID, -e.policy.loadUnit()); err != nil && !errors.Is(err, registry.ErrOutOfRange) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("remove instances: %w", errors.Join(errs...))
	}
	return nil
}
