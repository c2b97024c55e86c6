package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, time.Second, cfg.CycleInterval)
	require.False(t, cfg.Accelerated)
	require.Equal(t, "configs/fleet_scenario.json", cfg.ScenarioPath)
	require.Equal(t, 1000, cfg.TrafficPerCycle)
	require.Empty(t, cfg.ScaleService)
	require.Equal(t, uint64(100000), cfg.ScaleThreshold)
	require.Equal(t, 15, cfg.ScaleTarget)
	require.Equal(t, 256, cfg.EventBuffer)
	require.False(t, cfg.LegacyUnguarded)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FLEET_HTTP_PORT", "9090")
	t.Setenv("FLEET_CYCLE_INTERVAL", "250ms")
	t.Setenv("FLEET_ACCELERATED", "true")
	t.Setenv("FLEET_SCENARIO", "/etc/fleet/topo.json")
	t.Setenv("FLEET_TRAFFIC_PER_CYCLE", "500")
	t.Setenv("FLEET_SCALE_SERVICE", "api-gateway")
	t.Setenv("FLEET_SCALE_TRAFFIC_THRESHOLD", "2000")
	t.Setenv("FLEET_SCALE_TARGET", "9")
	t.Setenv("FLEET_LEGACY_UNGUARDED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.HTTPPort)
	require.Equal(t, 250*time.Millisecond, cfg.CycleInterval)
	require.True(t, cfg.Accelerated)
	require.Equal(t, "/etc/fleet/topo.json", cfg.ScenarioPath)
	require.Equal(t, 500, cfg.TrafficPerCycle)
	require.Equal(t, "api-gateway", cfg.ScaleService)
	require.Equal(t, uint64(2000), cfg.ScaleThreshold)
	require.Equal(t, 9, cfg.ScaleTarget)
	require.True(t, cfg.LegacyUnguarded)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("FLEET_CYCLE_INTERVAL", "soon")
	_, err := Load()
	require.Error(t, err)
}
