// Package logger provides logging implementations for engine runs.
//
// The logger package offers structured logging of run progress at the state,
// stage, and iteration levels. Implementations are thread-safe and support
// console and file destinations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/superclaude/engine/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// Logger is implemented by run loggers. The executor drives it; all methods
// must be safe for concurrent use.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)

	LogRunStart(runID, command string)
	LogState(runID, state string)
	LogAgentSelected(runID, agentID string, score float64, rationale string)
	LogModelSelected(runID, provider, model string, degraded bool)
	LogStageFinished(runID string, result models.StageResult)
	LogIterationFinished(runID string, rec models.IterationRecord)
	LogRunFinished(runID string, outcome models.Outcome, score float64, duration time.Duration)
}

// ConsoleLogger logs run progress to a writer with timestamps and thread
// safety. All output is prefixed with [HH:MM:SS] timestamps. It supports log
// level filtering and automatic color output for terminals.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	// color.NoColor is true when NO_COLOR is set or output is not a TTY.
	return isatty.IsTerminal(f.Fd()) && !color.NoColor
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}
	return "info"
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) { cl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) { cl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) { cl.logWithLevel("INFO", message) }

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) { cl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) { cl.logWithLevel("ERROR", message) }

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		cl.writer.Write([]byte(fmt.Sprintf("[%s] [%s] %s\n", ts, colorLevel(level), message)))
	} else {
		cl.writer.Write([]byte(fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)))
	}
}

func colorLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogRunStart logs the start of a run at INFO level.
// Format: "[HH:MM:SS] Run <id8> started: <command>"
func (cl *ConsoleLogger) LogRunStart(runID, command string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		id := color.New(color.Bold).Sprint(shortID(runID))
		cl.writer.Write([]byte(fmt.Sprintf("[%s] Run %s started: %s\n", ts, id, command)))
	} else {
		cl.writer.Write([]byte(fmt.Sprintf("[%s] Run %s started: %s\n", ts, shortID(runID), command)))
	}
}

// LogState logs an executor state transition at DEBUG level.
func (cl *ConsoleLogger) LogState(runID, state string) {
	cl.logWithLevel("DEBUG", fmt.Sprintf("run %s → %s", shortID(runID), state))
}

// LogAgentSelected logs the selector decision at INFO level.
func (cl *ConsoleLogger) LogAgentSelected(runID, agentID string, score float64, rationale string) {
	cl.logWithLevel("INFO", fmt.Sprintf("run %s agent=%s score=%.2f (%s)", shortID(runID), agentID, score, rationale))
}

// LogModelSelected logs the routed model at INFO level, with a degraded
// marker when the preferred tier was unavailable.
func (cl *ConsoleLogger) LogModelSelected(runID, provider, model string, degraded bool) {
	msg := fmt.Sprintf("run %s model=%s/%s", shortID(runID), provider, model)
	if degraded {
		msg += " (degraded)"
	}
	cl.logWithLevel("INFO", msg)
}

// LogStageFinished logs a validation stage result at INFO level.
// Format: "[HH:MM:SS] run <id8> stage <name>: passed|failed (N findings)"
func (cl *ConsoleLogger) LogStageFinished(runID string, result models.StageResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	status := "passed"
	if result.Skipped {
		status = "skipped"
	} else if !result.Passed {
		status = "failed"
	}

	if cl.colorOutput {
		switch status {
		case "passed":
			status = color.New(color.FgGreen).Sprint(status)
		case "failed":
			status = color.New(color.FgRed).Sprint(status)
		default:
			status = color.New(color.FgYellow).Sprint(status)
		}
	}

	cl.writer.Write([]byte(fmt.Sprintf("[%s] run %s stage %s: %s (%d findings)\n",
		ts, shortID(runID), result.Stage, status, len(result.Findings))))
}

// LogIterationFinished logs one agentic-loop iteration at INFO level.
func (cl *ConsoleLogger) LogIterationFinished(runID string, rec models.IterationRecord) {
	cl.logWithLevel("INFO", fmt.Sprintf("run %s iteration %d: score %.1f (%s)",
		shortID(runID), rec.Index, rec.Assessment.FinalScore, rec.Assessment.Band))
}

// LogRunFinished logs the terminal run summary at INFO level.
// Format: "[HH:MM:SS] Run <id8> finished: <outcome> score=<s> (<duration>)"
func (cl *ConsoleLogger) LogRunFinished(runID string, outcome models.Outcome, score float64, duration time.Duration) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	outcomeText := string(outcome)
	if cl.colorOutput {
		switch outcome {
		case models.OutcomeOK:
			outcomeText = color.New(color.FgGreen).Sprint(outcomeText)
		case models.OutcomeOKWithWarnings:
			outcomeText = color.New(color.FgYellow).Sprint(outcomeText)
		case models.OutcomeNeedsIteration:
			outcomeText = color.New(color.FgYellow).Sprint(outcomeText)
		case models.OutcomeFailed:
			outcomeText = color.New(color.FgRed).Sprint(outcomeText)
		}
	}

	cl.writer.Write([]byte(fmt.Sprintf("[%s] Run %s finished: %s score=%.1f (%s)\n",
		ts, shortID(runID), outcomeText, score, formatDuration(duration))))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// shortID returns the first 8 characters of a run id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, remainder/time.Second)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, remainder/time.Second)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

// LogTrace is a no-op implementation.
func (n *NoOpLogger) LogTrace(message string) {}

// LogDebug is a no-op implementation.
func (n *NoOpLogger) LogDebug(message string) {}

// LogInfo is a no-op implementation.
func (n *NoOpLogger) LogInfo(message string) {}

// LogWarn is a no-op implementation.
func (n *NoOpLogger) LogWarn(message string) {}

// LogError is a no-op implementation.
func (n *NoOpLogger) LogError(message string) {}

// LogRunStart is a no-op implementation.
func (n *NoOpLogger) LogRunStart(runID, command string) {}

// LogState is a no-op implementation.
func (n *NoOpLogger) LogState(runID, state string) {}

// LogAgentSelected is a no-op implementation.
func (n *NoOpLogger) LogAgentSelected(runID, agentID string, score float64, rationale string) {}

// LogModelSelected is a no-op implementation.
func (n *NoOpLogger) LogModelSelected(runID, provider, model string, degraded bool) {}

// LogStageFinished is a no-op implementation.
func (n *NoOpLogger) LogStageFinished(runID string, result models.StageResult) {}

// LogIterationFinished is a no-op implementation.
func (n *NoOpLogger) LogIterationFinished(runID string, rec models.IterationRecord) {}

// LogRunFinished is a no-op implementation.
func (n *NoOpLogger) LogRunFinished(runID string, outcome models.Outcome, score float64, duration time.Duration) {
}
