package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// ScaleResult summarizes one reconcile call.
type ScaleResult struct {
	ServiceName string
	Before      int
	After       int
	Added       []string
	Removed     []string
}

// Autoscaler converges a service's instance count onto a target in a
// single atomic adjustment per call; there is no gradual ramp.
type Autoscaler struct {
	reg    *registry.Registry
	placer *PlacementEngine
	log    logging.Logger
}

// NewAutoscaler builds an autoscaler that places through placer.
func NewAutoscaler(reg *registry.Registry, placer *PlacementEngine, log logging.Logger) *Autoscaler {
	if log == nil {
		log = logging.Noop()
	}
	return &Autoscaler{reg: reg, placer: placer, log: log}
}

// Reconcile adjusts the instance count of serviceName to exactly target.
// Scale-up places the difference; scale-down removes the most recently
// created instances first until the count matches.
func (a *Autoscaler) Reconcile(ctx context.Context, serviceName string, target int) (ScaleResult, error) {
	if target < 0 {
		return ScaleResult{}, fmt.Errorf("reconcile %q: negative target %d", serviceName, target)
	}

	result := ScaleResult{
		ServiceName: serviceName,
		Before:      a.reg.InstanceCount(serviceName),
	}

	switch {
	case target > result.Before:
		added, err := a.placer.Place(ctx, serviceName, target-result.Before)
		result.Added = added
		result.After = a.reg.InstanceCount(serviceName)
		if err != nil {
			return result, fmt.Errorf("reconcile %q scale-up: %w", serviceName, err)
		}
	case target < result.Before:
		// ListInstances is ordered oldest first; the tail is the LIFO
		// removal set.
		instances := a.reg.ListInstances(serviceName)
		doomed := make([]string, 0, result.Before-target)
		for _, inst := range instances[target:] {
			doomed = append(doomed, inst.ID)
		}
		err := a.placer.Remove(ctx, doomed)
		result.Removed = doomed
		result.After = a.reg.InstanceCount(serviceName)
		if err != nil {
			return result, fmt.Errorf("reconcile %q scale-down: %w", serviceName, err)
		}
	default:
		result.After = result.Before
		return result, nil
	}

	a.log.Info(ctx, "service scaled",
		logging.String("service", serviceName),
		logging.Int("before", result.Before),
		logging.Int("after", result.After),
	)
	return result, nil
}
