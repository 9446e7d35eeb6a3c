package logger

import (
	"time"

	"github.com/superclaude/engine/internal/models"
)

// MultiLogger fans every call out to a set of loggers. The run command uses
// it to log to the console and the run log file at once.
type MultiLogger struct {
	targets []Logger
}

// NewMultiLogger combines loggers. Nil entries are dropped.
func NewMultiLogger(targets ...Logger) *MultiLogger {
	ml := &MultiLogger{}
	for _, t := range targets {
		if t != nil {
			ml.targets = append(ml.targets, t)
		}
	}
	return ml
}

// LogTrace forwards to every target.
func (ml *MultiLogger) LogTrace(message string) {
	for _, t := range ml.targets {
		t.LogTrace(message)
	}
}

// LogDebug forwards to every target.
func (ml *MultiLogger) LogDebug(message string) {
	for _, t := range ml.targets {
		t.LogDebug(message)
	}
}

// LogInfo forwards to every target.
func (ml *MultiLogger) LogInfo(message string) {
	for _, t := range ml.targets {
		t.LogInfo(message)
	}
}

// LogWarn forwards to every target.
func (ml *MultiLogger) LogWarn(message string) {
	for _, t := range ml.targets {
		t.LogWarn(message)
	}
}

// LogError forwards to every target.
func (ml *MultiLogger) LogError(message string) {
	for _, t := range ml.targets {
		t.LogError(message)
	}
}

// LogRunStart forwards to every target.
func (ml *MultiLogger) LogRunStart(runID, command string) {
	for _, t := range ml.targets {
		t.LogRunStart(runID, command)
	}
}

// LogState forwards to every target.
func (ml *MultiLogger) LogState(runID, state string) {
	for _, t := range ml.targets {
		t.LogState(runID, state)
	}
}

// LogAgentSelected forwards to every target.
func (ml *MultiLogger) LogAgentSelected(runID, agentID string, score float64, rationale string) {
	for _, t := range ml.targets {
		t.LogAgentSelected(runID, agentID, score, rationale)
	}
}

// LogModelSelected forwards to every target.
func (ml *MultiLogger) LogModelSelected(runID, provider, model string, degraded bool) {
	for _, t := range ml.targets {
		t.LogModelSelected(runID, provider, model, degraded)
	}
}

// LogStageFinished forwards to every target.
func (ml *MultiLogger) LogStageFinished(runID string, result models.StageResult) {
	for _, t := range ml.targets {
		t.LogStageFinished(runID, result)
	}
}

// LogIterationFinished forwards to every target.
func (ml *MultiLogger) LogIterationFinished(runID string, rec models.IterationRecord) {
	for _, t := range ml.targets {
		t.LogIterationFinished(runID, rec)
	}
}

// LogRunFinished forwards to every target.
func (ml *MultiLogger) LogRunFinished(runID string, outcome models.Outcome, score float64, duration time.Duration) {
	for _, t := range ml.targets {
		t.LogRunFinished(runID, outcome, score, duration)
	}
}
