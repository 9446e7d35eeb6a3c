package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superclaude/engine/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ".superclaude/commands", cfg.CommandsDir)
	assert.Equal(t, ".superclaude/agents", cfg.AgentsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, models.DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.ProviderCall)
	assert.Equal(t, 300*time.Second, cfg.Timeouts.Stage)
	assert.Equal(t, 1800*time.Second, cfg.Timeouts.Run)
	assert.False(t, cfg.OfflineMode)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().CommandsDir, cfg.CommandsDir)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := `
commands_dir: /opt/commands
log_level: debug
max_iterations: 2
quality_target: 85
timeouts:
  stage: 120s
  run: 10m
tiers:
  fast_iteration:
    - openai/gpt-4o-mini
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/commands", cfg.CommandsDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.MaxIterations)
	assert.Equal(t, 85.0, cfg.QualityTarget)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Stage)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.Run)
	// Untouched fields keep defaults.
	assert.Equal(t, ".superclaude/agents", cfg.AgentsDir)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.ProviderCall)
	assert.Equal(t, []string{"openai/gpt-4o-mini"}, cfg.Tiers["fast_iteration"])
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeouts:\n  stage: sideways"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage")
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvOfflineMode:   "1",
		EnvMetricsDir:    "/var/metrics",
		EnvMaxIterations: "4",
		EnvLogLevel:      "trace",
	}

	cfg := DefaultConfig()
	cfg.ApplyEnvForTest(func(k string) string { return env[k] })

	assert.True(t, cfg.OfflineMode)
	assert.Equal(t, "/var/metrics", cfg.MetricsDir)
	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, "trace", cfg.LogLevel)
}

func TestMaxIterationsClampedToHardCeiling(t *testing.T) {
	// Raising past the hard ceiling must be rejected: ENGINE_MAX_ITERATIONS=10
	// still terminates at 5.
	cfg := DefaultConfig()
	cfg.ApplyEnvForTest(func(k string) string {
		if k == EnvMaxIterations {
			return "10"
		}
		return ""
	})

	assert.Equal(t, models.HardMaxIterations, cfg.MaxIterations)
}

func TestTimeoutsClampedToHardCaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := `
timeouts:
  provider_call: 5m
  stage: 2h
  run: 5h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.MaxProviderCallTimeout, cfg.Timeouts.ProviderCall)
	assert.Equal(t, models.MaxStageTimeout, cfg.Timeouts.Stage)
	assert.Equal(t, models.MaxRunTimeout, cfg.Timeouts.Run)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on", " 1 "} {
		assert.True(t, isTruthy(v), "value %q", v)
	}
	for _, v := range []string{"", "0", "false", "off", "maybe"} {
		assert.False(t, isTruthy(v), "value %q", v)
	}
}
