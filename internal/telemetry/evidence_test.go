package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superclaude/engine/internal/models"
)

func TestEvidenceDir(t *testing.T) {
	t.Run("creates run tree with stages dir", func(t *testing.T) {
		base := t.TempDir()

		ed, err := NewEvidenceDir(base, "run-1")
		require.NoError(t, err)

		assert.DirExists(t, filepath.Join(base, ".runs", "run-1", "stages"))
		assert.Equal(t, filepath.Join(base, ".runs", "run-1"), ed.Root())
	})

	t.Run("writes redacted json", func(t *testing.T) {
		ed, err := NewEvidenceDir(t.TempDir(), "run-1")
		require.NoError(t, err)

		payload := map[string]any{
			"command": "/sc:implement",
			"env":     map[string]any{"ANTHROPIC_API_KEY": "sk-abc"},
		}
		require.NoError(t, ed.WriteJSON(EvidenceCommandFile, payload))

		data, err := os.ReadFile(filepath.Join(ed.Root(), EvidenceCommandFile))
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, RedactedPlaceholder, got["env"].(map[string]any)["ANTHROPIC_API_KEY"])
		assert.Equal(t, "/sc:implement", got["command"])
	})

	t.Run("writes stage results under stages", func(t *testing.T) {
		ed, err := NewEvidenceDir(t.TempDir(), "run-1")
		require.NoError(t, err)

		result := models.StageResult{Stage: "security", Passed: false, FatalEncountered: true}
		path, err := ed.WriteStage("security", result)
		require.NoError(t, err)

		assert.Equal(t, ed.StagePath("security"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var got models.StageResult
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, got.FatalEncountered)
	})

	t.Run("raw artifacts return digest", func(t *testing.T) {
		ed, err := NewEvidenceDir(t.TempDir(), "run-1")
		require.NoError(t, err)

		path, digest, err := ed.WriteRaw("diff.patch", []byte("+added line\n"))
		require.NoError(t, err)
		assert.FileExists(t, path)
		assert.Len(t, digest, 64) // sha256 hex

		// Same content, same digest.
		_, digest2, err := ed.WriteRaw("diff2.patch", []byte("+added line\n"))
		require.NoError(t, err)
		assert.Equal(t, digest, digest2)
	})
}
