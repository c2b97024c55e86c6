package model

// Baseline usage metrics an instance is reset to after recovery.
const (
	BaselineCPUPct    = 50.0
	BaselineMemoryPct = 60.0
)

// ServiceInstance is a deployed unit of a named service, hosted by exactly
// one pool. The instance carries the foreign key (PoolID); the pool only
// tracks a count.
type ServiceInstance struct {
	ID          string
	ServiceName string
	PoolID      string

	CPUPct         float64
	MemoryPct      float64
	RequestsPerSec int
	// Health is a score in [0,1]; below 0.5 the instance is considered
	// unhealthy and eligible for recovery.
	Health float64

	// Seq is a registry-assigned monotonic creation sequence number. The
	// autoscaler removes the highest sequence numbers first on scale-down.
	Seq uint64
}
