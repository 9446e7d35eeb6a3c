// Package config loads engine configuration: defaults, optional YAML file,
// then environment overrides, in that order. Later layers only override what
// they explicitly set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superclaude/engine/internal/models"
)

// Environment variable names recognized by the engine.
const (
	EnvOfflineMode   = "ENGINE_OFFLINE_MODE"
	EnvMetricsDir    = "ENGINE_METRICS_DIR"
	EnvMaxIterations = "ENGINE_MAX_ITERATIONS"
	EnvLogLevel      = "ENGINE_LOG_LEVEL"
)

// Timeouts holds the per-operation deadlines. Each is clamped to its hard
// cap; see models/limits.go.
type Timeouts struct {
	ProviderCall   time.Duration `yaml:"provider_call"`
	ConsensusQuery time.Duration `yaml:"consensus_query"`
	Stage          time.Duration `yaml:"stage"`
	Iteration      time.Duration `yaml:"iteration"`
	Run            time.Duration `yaml:"run"`
}

// Config represents engine configuration options.
type Config struct {
	// CommandsDir is the directory holding command definition files.
	CommandsDir string `yaml:"commands_dir"`

	// AgentsDir is the directory holding agent persona files.
	AgentsDir string `yaml:"agents_dir"`

	// MetricsDir is the base directory for telemetry: events.jsonl and the
	// per-run .runs/ tree live under it.
	MetricsDir string `yaml:"metrics_dir"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// OfflineMode disables all network calls; adapters report unavailable.
	OfflineMode bool `yaml:"offline_mode"`

	// MaxIterations is the agentic loop budget, clamped to the hard ceiling.
	MaxIterations int `yaml:"max_iterations"`

	// AgentCacheSize bounds the agent registry's in-memory entries.
	AgentCacheSize int `yaml:"agent_cache_size"`

	// QualityTarget is the loop's target final score.
	QualityTarget float64 `yaml:"quality_target"`

	// Timeouts are the per-operation deadlines.
	Timeouts Timeouts `yaml:"timeouts"`

	// Tiers optionally overrides the router's model table. Keys are tier
	// names; values are "provider/model-id" refs in priority order.
	Tiers map[string][]string `yaml:"tiers"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		CommandsDir:    ".superclaude/commands",
		AgentsDir:      ".superclaude/agents",
		MetricsDir:     ".",
		LogLevel:       "info",
		OfflineMode:    false,
		MaxIterations:  models.DefaultMaxIterations,
		AgentCacheSize: 256,
		QualityTarget:  90,
		Timeouts: Timeouts{
			ProviderCall:   models.DefaultProviderCallTimeout,
			ConsensusQuery: models.DefaultConsensusQueryTimeout,
			Stage:          models.DefaultStageTimeout,
			Iteration:      models.DefaultIterationTimeout,
			Run:            models.DefaultRunTimeout,
		},
	}
}

// Load reads configuration from the given file path, merging over defaults
// and applying environment overrides last. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	cfg.clamp()
	return cfg, nil
}

// loadFile loads defaults plus the YAML file when present.
func loadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations arrive as strings ("90s", "5m"); parse through a shadow type.
	type yamlTimeouts struct {
		ProviderCall   string `yaml:"provider_call"`
		ConsensusQuery string `yaml:"consensus_query"`
		Stage          string `yaml:"stage"`
		Iteration      string `yaml:"iteration"`
		Run            string `yaml:"run"`
	}
	type yamlConfig struct {
		CommandsDir    string              `yaml:"commands_dir"`
		AgentsDir      string              `yaml:"agents_dir"`
		MetricsDir     string              `yaml:"metrics_dir"`
		LogLevel       string              `yaml:"log_level"`
		OfflineMode    bool                `yaml:"offline_mode"`
		MaxIterations  int                 `yaml:"max_iterations"`
		AgentCacheSize int                 `yaml:"agent_cache_size"`
		QualityTarget  float64             `yaml:"quality_target"`
		Timeouts       yamlTimeouts        `yaml:"timeouts"`
		Tiers          map[string][]string `yaml:"tiers"`
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yc.CommandsDir != "" {
		cfg.CommandsDir = yc.CommandsDir
	}
	if yc.AgentsDir != "" {
		cfg.AgentsDir = yc.AgentsDir
	}
	if yc.MetricsDir != "" {
		cfg.MetricsDir = yc.MetricsDir
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.OfflineMode {
		cfg.OfflineMode = true
	}
	if yc.MaxIterations != 0 {
		cfg.MaxIterations = yc.MaxIterations
	}
	if yc.AgentCacheSize != 0 {
		cfg.AgentCacheSize = yc.AgentCacheSize
	}
	if yc.QualityTarget != 0 {
		cfg.QualityTarget = yc.QualityTarget
	}
	if len(yc.Tiers) > 0 {
		cfg.Tiers = yc.Tiers
	}

	parse := func(field, value string, dst *time.Duration) error {
		if value == "" {
			return nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s timeout %q: %w", field, value, err)
		}
		*dst = d
		return nil
	}
	if err := parse("provider_call", yc.Timeouts.ProviderCall, &cfg.Timeouts.ProviderCall); err != nil {
		return nil, err
	}
	if err := parse("consensus_query", yc.Timeouts.ConsensusQuery, &cfg.Timeouts.ConsensusQuery); err != nil {
		return nil, err
	}
	if err := parse("stage", yc.Timeouts.Stage, &cfg.Timeouts.Stage); err != nil {
		return nil, err
	}
	if err := parse("iteration", yc.Timeouts.Iteration, &cfg.Timeouts.Iteration); err != nil {
		return nil, err
	}
	if err := parse("run", yc.Timeouts.Run, &cfg.Timeouts.Run); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays recognized environment variables onto the config.
// getenv is injected so tests can supply a fixed view.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvOfflineMode); isTruthy(v) {
		c.OfflineMode = true
	}
	if v := getenv(EnvMetricsDir); v != "" {
		c.MetricsDir = v
	}
	if v := getenv(EnvMaxIterations); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxIterations = n
		}
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// clamp enforces the hard ceilings: the iteration budget and every timeout.
// Raises past a cap are silently reduced to the cap.
func (c *Config) clamp() {
	c.MaxIterations = models.ClampIterations(c.MaxIterations)

	clampDur := func(d *time.Duration, def, max time.Duration) {
		if *d <= 0 {
			*d = def
		}
		if *d > max {
			*d = max
		}
	}
	clampDur(&c.Timeouts.ProviderCall, models.DefaultProviderCallTimeout, models.MaxProviderCallTimeout)
	clampDur(&c.Timeouts.ConsensusQuery, models.DefaultConsensusQueryTimeout, models.MaxConsensusQueryTimeout)
	clampDur(&c.Timeouts.Stage, models.DefaultStageTimeout, models.MaxStageTimeout)
	clampDur(&c.Timeouts.Iteration, models.DefaultIterationTimeout, models.MaxIterationTimeout)
	clampDur(&c.Timeouts.Run, models.DefaultRunTimeout, models.MaxRunTimeout)

	if c.AgentCacheSize <= 0 {
		c.AgentCacheSize = 256
	}
}

// ApplyEnvForTest exposes env application with an injected getenv. Tests use
// it to verify override and clamping behavior without mutating the process
// environment.
func (c *Config) ApplyEnvForTest(getenv func(string) string) {
	c.applyEnv(getenv)
	c.clamp()
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
