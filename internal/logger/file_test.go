package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superclaude/engine/internal/models"
)

func TestFileLogger(t *testing.T) {
	t.Run("creates run log and latest symlink", func(t *testing.T) {
		dir := t.TempDir()

		fl, err := NewFileLogger(dir, "info")
		require.NoError(t, err)
		defer fl.Close()

		assert.FileExists(t, fl.Path())

		link, err := os.Readlink(filepath.Join(dir, "latest.log"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(fl.Path()), link)
	})

	t.Run("writes run lifecycle events", func(t *testing.T) {
		dir := t.TempDir()

		fl, err := NewFileLogger(dir, "debug")
		require.NoError(t, err)

		fl.LogRunStart("run-1234", "/sc:implement task")
		fl.LogState("run-1234", "SCORE")
		fl.LogStageFinished("run-1234", models.StageResult{
			Stage:  "tests",
			Passed: true,
			Findings: []models.Finding{
				{Stage: "tests", Severity: models.SeverityInfo, Message: "12 tests passed"},
			},
		})
		fl.LogRunFinished("run-1234", models.OutcomeOK, 93.5, 40*time.Second)
		require.NoError(t, fl.Close())

		data, err := os.ReadFile(fl.Path())
		require.NoError(t, err)
		content := string(data)

		assert.Contains(t, content, "=== Engine Run Log ===")
		assert.Contains(t, content, "Run run-1234 started")
		assert.Contains(t, content, "stage tests: passed")
		assert.Contains(t, content, "12 tests passed") // findings at debug level
		assert.Contains(t, content, "=== RUN SUMMARY ===")
		assert.Contains(t, content, "Outcome:  ok")
	})

	t.Run("respects level filter for findings detail", func(t *testing.T) {
		dir := t.TempDir()

		fl, err := NewFileLogger(dir, "info")
		require.NoError(t, err)

		fl.LogStageFinished("run-1", models.StageResult{
			Stage:  "style",
			Passed: true,
			Findings: []models.Finding{
				{Stage: "style", Severity: models.SeverityLow, Message: "long line"},
			},
		})
		require.NoError(t, fl.Close())

		data, err := os.ReadFile(fl.Path())
		require.NoError(t, err)
		assert.Contains(t, string(data), "stage style: passed")
		assert.NotContains(t, string(data), "long line")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		fl, err := NewFileLogger(t.TempDir(), "info")
		require.NoError(t, err)
		require.NoError(t, fl.Close())
		require.NoError(t, fl.Close())
	})
}
