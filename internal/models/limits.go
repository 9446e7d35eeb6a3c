package models

import "time"

// Iteration ceilings for the agentic loop. HardMaxIterations is an absolute
// anti-runaway bound: no configuration path, flag, or environment variable
// may raise it.
const (
	HardMaxIterations    = 5
	DefaultMaxIterations = 3
)

// ClampIterations bounds a requested iteration budget to
// [1, HardMaxIterations]. Non-positive requests fall back to the default.
func ClampIterations(requested int) int {
	if requested <= 0 {
		requested = DefaultMaxIterations
	}
	if requested > HardMaxIterations {
		return HardMaxIterations
	}
	return requested
}

// Default and maximum deadlines for the engine's blocking operations.
// Each deadline is configurable downward but never past its cap.
const (
	DefaultProviderCallTimeout   = 60 * time.Second
	DefaultConsensusQueryTimeout = 120 * time.Second
	DefaultStageTimeout          = 300 * time.Second
	DefaultIterationTimeout      = 600 * time.Second
	DefaultRunTimeout            = 1800 * time.Second

	MaxProviderCallTimeout   = 60 * time.Second
	MaxConsensusQueryTimeout = 120 * time.Second
	MaxStageTimeout          = 1800 * time.Second
	MaxIterationTimeout      = 600 * time.Second
	MaxRunTimeout            = 3600 * time.Second
)
