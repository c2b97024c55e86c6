package model

import "fmt"

// Provider tags which cloud a pool belongs to. The core never talks to a
// provider API; the tag exists for filtering and reporting.
type Provider string

const (
	ProviderAWS     Provider = "aws"
	ProviderAzure   Provider = "azure"
	ProviderGCP     Provider = "gcp"
	ProviderOracle  Provider = "oracle"
	ProviderAlibaba Provider = "alibaba"
)

// PoolStatus is the health state of a resource pool.
type PoolStatus string

const (
	StatusHealthy  PoolStatus = "healthy"
	StatusDegraded PoolStatus = "degraded"
	StatusCritical PoolStatus = "critical"
	StatusOffline  PoolStatus = "offline"
)

// ValidStatus reports whether s is one of the known pool statuses.
func ValidStatus(s PoolStatus) bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusCritical, StatusOffline:
		return true
	}
	return false
}

// ValidTransition reports whether a pool may move from one status to
// another. Healthy pools can degrade to any non-healthy state; non-healthy
// pools only ever transition back to Healthy (recovery restores fully,
// there are no partial-healing states).
func ValidTransition(from, to PoolStatus) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	if from == StatusHealthy {
		return true
	}
	return to == StatusHealthy
}

// PoolSpec describes a pool at registration time.
type PoolSpec struct {
	ID        string
	Provider  Provider
	Region    string
	Country   string
	Capacity  int
	LatencyMS float64
}

// Validate checks the fields the registry refuses to accept.
func (s PoolSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("pool spec: empty id")
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("pool spec %q: capacity must be positive, got %d", s.ID, s.Capacity)
	}
	if s.LatencyMS < 0 {
		return fmt.Errorf("pool spec %q: negative latency %v", s.ID, s.LatencyMS)
	}
	return nil
}

// Pool is a resource-hosting unit (data center) with fixed capacity and
// mutable load. Pools are long-lived: they are created at fleet
// initialization and never destroyed during normal operation.
type Pool struct {
	ID       string
	Provider Provider
	Region   string
	Country  string

	Capacity    int
	CurrentLoad int
	Status      PoolStatus
	LatencyMS   float64
	// UptimePct is a percentage in [0,100].
	UptimePct float64

	// InstanceCount is a back-reference maintained by the registry: the
	// number of service instances currently hosted on this pool. The pool
	// never owns instance records.
	InstanceCount int
}

// LoadRatio is current_load/capacity, the primary load-balancing signal.
func (p Pool) LoadRatio() float64 {
	if p.Capacity <= 0 {
		return 0
	}
	return float64(p.CurrentLoad) / float64(p.Capacity)
}

// Overloaded reports whether the pool is above the given load-ratio
// threshold (e.g. 0.95 for the healing sweep).
func (p Pool) Overloaded(threshold float64) bool {
	return float64(p.CurrentLoad) > threshold*float64(p.Capacity)
}
