// Package config loads fleetd process configuration from the environment.
package config

import (
	"time"

	"github.com/vrischmann/envconfig"
)

// Config is the fleetd process configuration. Fleet topology itself comes
// from the scenario file, not from env.
type Config struct {
	HTTPPort      string        `envconfig:"FLEET_HTTP_PORT,default=8080"`
	CycleInterval time.Duration `envconfig:"FLEET_CYCLE_INTERVAL,default=1s"`
	Accelerated   bool          `envconfig:"FLEET_ACCELERATED,default=false"`

	ScenarioPath string `envconfig:"FLEET_SCENARIO,default=configs/fleet_scenario.json"`

	TrafficPerCycle int   `envconfig:"FLEET_TRAFFIC_PER_CYCLE,default=1000"`
	DemandSeed      int64 `envconfig:"FLEET_DEMAND_SEED,default=1"`

	// Autoscaling trigger; an empty service name disables it.
	ScaleService   string `envconfig:"FLEET_SCALE_SERVICE,optional"`
	ScaleThreshold uint64 `envconfig:"FLEET_SCALE_TRAFFIC_THRESHOLD,default=100000"`
	ScaleTarget    int    `envconfig:"FLEET_SCALE_TARGET,default=15"`

	EventBuffer int `envconfig:"FLEET_EVENT_BUFFER,default=256"`

	// LegacyUnguarded reproduces the historical behavior of placing onto
	// full pools and migrating load without a headroom check.
	LegacyUnguarded bool `envconfig:"FLEET_LEGACY_UNGUARDED,default=false"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Init(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
