package model

import "time"

// HealingKind identifies the corrective action taken.
type HealingKind string

const (
	HealingLoadMigration    HealingKind = "load_migration"
	HealingPoolRecovery     HealingKind = "pool_recovery"
	HealingInstanceRecovery HealingKind = "instance_recovery"
)

// HealingAction is an append-only audit record of one corrective mutation.
// It is never modified after creation.
type HealingAction struct {
	Kind HealingKind
	// SourceID is the pool or instance the action was applied to.
	SourceID string
	// TargetPoolID is set only for load migrations.
	TargetPoolID string
	// Magnitude is the moved load for migrations, zero otherwise.
	Magnitude int
	Timestamp time.Time
}
