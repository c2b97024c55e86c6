package core

import (
	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// DefaultRoutingCeiling excludes pools at or above this load ratio from
// routing candidates.
const DefaultRoutingCeiling = 0.9

// RoutingPolicy tunes candidate filtering for the router.
type RoutingPolicy struct {
	// MaxLoadRatio excludes pools at or above this load ratio. Zero means
	// DefaultRoutingCeiling.
	MaxLoadRatio float64
}

func (p RoutingPolicy) maxLoadRatio() float64 {
	if p.MaxLoadRatio <= 0 {
		return DefaultRoutingCeiling
	}
	return p.MaxLoadRatio
}

// Router maps an incoming request's origin to a target pool under live
// load and health constraints.
type Router struct {
	reg    *registry.Registry
	log    logging.Logger
	policy RoutingPolicy
}

// NewRouter builds a router over the shared registry.
func NewRouter(reg *registry.Registry, log logging.Logger, policy RoutingPolicy) *Router {
	if log == nil {
		log = logging.Noop()
	}
	return &Router{reg: reg, log: log, policy: policy}
}

// Route picks the target pool for a request from origin: among Healthy
// pools below the load ceiling, the one with the lowest latency estimate
// wins, ties broken by pool ID ascending.
//
// ok is false when no pool qualifies. That is an expected, frequent
// outcome under load, not a fault; callers fall back (retry next cycle,
// shed the request) rather than treating it as fatal.
func (r *Router) Route(origin string) (poolID string, ok bool) {
	candidates := r.reg.ListPools(registry.PoolFilter{
		Status:       model.StatusHealthy,
		MaxLoadRatio: r.policy.maxLoadRatio(),
	})
	if len(candidates) == 0 {
		return "", false
	}

	// Candidates arrive ordered by ID, so keeping the first strictly
	// better pool gives the ID tie-break for free.
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.LatencyMS < best.LatencyMS {
			best = p
		}
	}
	return best.ID, true
}
