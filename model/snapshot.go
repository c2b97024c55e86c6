package model

// FleetSnapshot is the read-only summary handed to reporting consumers.
// The core produces it; formatting and logging happen elsewhere.
type FleetSnapshot struct {
	PoolCount      int     `json:"pool_count"`
	InstanceCount  int     `json:"instance_count"`
	RequestsServed uint64  `json:"requests_served"`
	HealingActions uint64  `json:"healing_actions"`
	UptimePct      float64 `json:"uptime_pct"`
}
