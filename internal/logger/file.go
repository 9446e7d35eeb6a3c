package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/superclaude/engine/internal/models"
)

// FileLogger logs run events to a timestamped file under the metrics
// directory and maintains a latest.log symlink pointing at the most recent
// run. It is thread-safe and implements Logger.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing into logDir with the given
// level. The directory is created if missing.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Timestamped filename: run-YYYYMMDD-HHMMSS.log
	ts := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", ts))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		logLevel: normalizeLogLevel(logLevel),
	}

	fl.write("=== Engine Run Log ===\n")
	fl.write(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

// Path returns the path of the active run log file.
func (fl *FileLogger) Path() string { return fl.runFile }

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) { fl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) { fl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) { fl.logWithLevel("INFO", message) }

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) { fl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) { fl.logWithLevel("ERROR", message) }

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.write(fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message))
}

// LogRunStart logs the start of a run at INFO level.
func (fl *FileLogger) LogRunStart(runID, command string) {
	if !fl.shouldLog("info") {
		return
	}
	fl.write(fmt.Sprintf("[%s] Run %s started: %s\n", time.Now().Format("15:04:05"), runID, command))
}

// LogState logs an executor state transition at DEBUG level.
func (fl *FileLogger) LogState(runID, state string) {
	fl.logWithLevel("DEBUG", fmt.Sprintf("run %s → %s", shortID(runID), state))
}

// LogAgentSelected logs the selector decision at INFO level.
func (fl *FileLogger) LogAgentSelected(runID, agentID string, score float64, rationale string) {
	fl.logWithLevel("INFO", fmt.Sprintf("run %s agent=%s score=%.2f (%s)", shortID(runID), agentID, score, rationale))
}

// LogModelSelected logs the routed model at INFO level.
func (fl *FileLogger) LogModelSelected(runID, provider, model string, degraded bool) {
	msg := fmt.Sprintf("run %s model=%s/%s", shortID(runID), provider, model)
	if degraded {
		msg += " (degraded)"
	}
	fl.logWithLevel("INFO", msg)
}

// LogStageFinished logs a validation stage result at INFO level, with each
// finding on its own line at DEBUG level.
func (fl *FileLogger) LogStageFinished(runID string, result models.StageResult) {
	if !fl.shouldLog("info") {
		return
	}

	status := "passed"
	if result.Skipped {
		status = "skipped"
	} else if !result.Passed {
		status = "failed"
	}
	fl.write(fmt.Sprintf("[%s] run %s stage %s: %s (%d findings)\n",
		time.Now().Format("15:04:05"), shortID(runID), result.Stage, status, len(result.Findings)))

	if fl.shouldLog("debug") {
		for _, f := range result.Findings {
			fl.write(fmt.Sprintf("[%s]   %s\n", time.Now().Format("15:04:05"), f.String()))
		}
	}
}

// LogIterationFinished logs one agentic-loop iteration at INFO level.
func (fl *FileLogger) LogIterationFinished(runID string, rec models.IterationRecord) {
	fl.logWithLevel("INFO", fmt.Sprintf("run %s iteration %d: score %.1f (%s)",
		shortID(runID), rec.Index, rec.Assessment.FinalScore, rec.Assessment.Band))
}

// LogRunFinished logs the terminal run summary at INFO level.
func (fl *FileLogger) LogRunFinished(runID string, outcome models.Outcome, score float64, duration time.Duration) {
	if !fl.shouldLog("info") {
		return
	}
	ts := time.Now().Format("15:04:05")
	fl.write(fmt.Sprintf(
		"\n[%s] === RUN SUMMARY ===\n"+
			"[%s] Run:      %s\n"+
			"[%s] Outcome:  %s\n"+
			"[%s] Score:    %.1f\n"+
			"[%s] Duration: %.1fs\n"+
			"[%s] Finished: %s\n",
		ts, ts, runID, ts, outcome, ts, score, ts, duration.Seconds(),
		ts, time.Now().Format(time.RFC3339)))
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

// write is a thread-safe helper that appends to the run log file.
func (fl *FileLogger) write(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
