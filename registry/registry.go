package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/model"
)

var (
	ErrPoolExists       = errors.New("pool already exists")
	ErrPoolNotFound     = errors.New("pool not found")
	ErrPoolBadInput     = errors.New("invalid pool spec")
	ErrInstanceExists   = errors.New("instance already exists")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrOutOfRange       = errors.New("load mutation out of range")
	ErrBadStatus        = errors.New("unknown pool status")
	ErrBadTransition    = errors.New("invalid status transition")
)

// Registry is the single source of truth for pools and service instances.
// Placement, routing, healing and autoscaling never hold private copies of
// this state; every read and write goes through these methods.
//
// All mutation is atomic per call under an internal RWMutex, so the
// registry is safe to use from the control loop and from concurrent API
// handlers at the same time.
type Registry struct {
	mu  sync.RWMutex
	log logging.Logger

	pools     map[string]*model.Pool
	instances map[string]*model.ServiceInstance
	byService map[string]map[string]*model.ServiceInstance

	nextSeq uint64
}

// New creates an empty registry. A nil logger is replaced with a noop.
func New(log logging.Logger) *Registry {
	if log == nil {
		log = logging.Noop()
	}
	return &Registry{
		log:       log,
		pools:     make(map[string]*model.Pool),
		instances: make(map[string]*model.ServiceInstance),
		byService: make(map[string]map[string]*model.ServiceInstance),
	}
}

//
// ---------- Pools ----------
//

// RegisterPool adds a pool from its spec. New pools start Healthy, empty,
// and at full uptime.
func (r *Registry) RegisterPool(spec model.PoolSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPoolBadInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[spec.ID]; exists {
		return "", fmt.Errorf("%w: %q", ErrPoolExists, spec.ID)
	}
	r.pools[spec.ID] = &model.Pool{
		ID:        spec.ID,
		Provider:  spec.Provider,
		Region:    spec.Region,
		Country:   spec.Country,
		Capacity:  spec.Capacity,
		Status:    model.StatusHealthy,
		LatencyMS: spec.LatencyMS,
		UptimePct: 100.0,
	}
	return spec.ID, nil
}

// GetPool returns a copy of the pool with the given ID.
func (r *Registry) GetPool(id string) (model.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[id]
	if !ok {
		return model.Pool{}, fmt.Errorf("%w: %q", ErrPoolNotFound, id)
	}
	return *p, nil
}

// PoolFilter narrows ListPools results. Zero values match everything.
type PoolFilter struct {
	Status   model.PoolStatus
	Provider model.Provider
	Region   string
	// MaxLoadRatio excludes pools at or above this load ratio when > 0.
	MaxLoadRatio float64
	// ExcludeID drops a single pool, e.g. a migration source.
	ExcludeID string
}

func (f PoolFilter) matches(p *model.Pool) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Provider != "" && p.Provider != f.Provider {
		return false
	}
	if f.Region != "" && p.Region != f.Region {
		return false
	}
	if f.MaxLoadRatio > 0 && float64(p.CurrentLoad) >= f.MaxLoadRatio*float64(p.Capacity) {
		return false
	}
	if f.ExcludeID != "" && p.ID == f.ExcludeID {
		return false
	}
	return true
}

// ListPools returns copies of matching pools ordered by pool ID so callers
// observe a deterministic sequence for any given registry state.
func (r *Registry) ListPools(filter PoolFilter) []model.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		if filter.matches(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddLoad adjusts a pool's current load by delta and returns the new load.
// Load never underflows: a delta that would take it below zero is clamped
// to zero, logged as a warning, and reported with ErrOutOfRange alongside
// the clamped value. Load MAY transiently exceed capacity; the healing
// sweep is responsible for bringing it back down.
func (r *Registry) AddLoad(id string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrPoolNotFound, id)
	}

	next := p.CurrentLoad + delta
	if next < 0 {
		r.log.Warn(context.Background(), "load decrement clamped to zero",
			logging.String("pool_id", id),
			logging.Int("current_load", p.CurrentLoad),
			logging.Int("delta", delta),
		)
		p.CurrentLoad = 0
		return 0, fmt.Errorf("%w: pool %q load %d + delta %d", ErrOutOfRange, id, next-delta, delta)
	}
	p.CurrentLoad = next
	return next, nil
}

// SetStatus moves a pool to the given status, enforcing the closed
// transition table: Healthy may degrade to anything, non-Healthy states
// only ever return to Healthy.
func (r *Registry) SetStatus(id string, status model.PoolStatus) error {
	if !model.ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrBadStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, id)
	}
	if !model.ValidTransition(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, p.Status, status)
	}
	p.Status = status
	return nil
}

// SetUptime records a pool's uptime percentage.
func (r *Registry) SetUptime(id string, pct float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, id)
	}
	p.UptimePct = pct
	return nil
}

// PoolCount returns the number of registered pools.
func (r *Registry) PoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

//
// ---------- Instances ----------
//

// CreateInstance records a new instance of serviceName on poolID under the
// provided ID. The registry assigns the creation sequence number, starts
// the instance healthy at baseline usage, and bumps the pool's instance
// count. It does NOT touch pool load; the placement engine owns that.
func (r *Registry) CreateInstance(id, serviceName, poolID string) (model.ServiceInstance, error) {
	if id == "" || serviceName == "" {
		return model.ServiceInstance{}, fmt.Errorf("%w: empty instance id or service name", ErrPoolBadInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[poolID]
	if !ok {
		return model.ServiceInstance{}, fmt.Errorf("%w: %q", ErrPoolNotFound, poolID)
	}
	if _, exists := r.instances[id]; exists {
		return model.ServiceInstance{}, fmt.Errorf("%w: %q", ErrInstanceExists, id)
	}

	r.nextSeq++
	inst := &model.ServiceInstance{
		ID:          id,
		ServiceName: serviceName,
		PoolID:      poolID,
		CPUPct:      model.BaselineCPUPct,
		MemoryPct:   model.BaselineMemoryPct,
		Health:      1.0,
		Seq:         r.nextSeq,
	}
	r.instances[id] = inst
	svc := r.byService[serviceName]
	if svc == nil {
		svc = make(map[string]*model.ServiceInstance)
		r.byService[serviceName] = svc
	}
	svc[id] = inst
	pool.InstanceCount++

	return *inst, nil
}

// DeleteInstance removes an instance and returns its final state, so the
// caller can release the load it held on its pool.
func (r *Registry) DeleteInstance(id string) (model.ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return model.ServiceInstance{}, fmt.Errorf("%w: %q", ErrInstanceNotFound, id)
	}
	delete(r.instances, id)
	if svc := r.byService[inst.ServiceName]; svc != nil {
		delete(svc, id)
		if len(svc) == 0 {
			delete(r.byService, inst.ServiceName)
		}
	}
	if pool, ok := r.pools[inst.PoolID]; ok && pool.InstanceCount > 0 {
		pool.InstanceCount--
	}
	return *inst, nil
}

// GetInstance returns a copy of the instance with the given ID.
func (r *Registry) GetInstance(id string) (model.ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return model.ServiceInstance{}, fmt.Errorf("%w: %q", ErrInstanceNotFound, id)
	}
	return *inst, nil
}

// ListInstances returns copies of all instances of a service, ordered by
// creation sequence (oldest first). An empty serviceName lists everything.
func (r *Registry) ListInstances(serviceName string) []model.ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.ServiceInstance
	if serviceName == "" {
		out = make([]model.ServiceInstance, 0, len(r.instances))
		for _, inst := range r.instances {
			out = append(out, *inst)
		}
	} else {
		svc := r.byService[serviceName]
		out = make([]model.ServiceInstance, 0, len(svc))
		for _, inst := range svc {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// InstanceCount returns the number of instances of a service, or of the
// whole fleet when serviceName is empty.
func (r *Registry) InstanceCount(serviceName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if serviceName == "" {
		return len(r.instances)
	}
	return len(r.byService[serviceName])
}

// SetInstanceHealth overwrites an instance's health score and usage
// metrics. Health is clamped into [0,1].
func (r *Registry) SetInstanceHealth(id string, health, cpuPct, memPct float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInstanceNotFound, id)
	}
	if health < 0 {
		health = 0
	}
	if health > 1 {
		health = 1
	}
	inst.Health = health
	inst.CPUPct = cpuPct
	inst.MemoryPct = memPct
	return nil
}
