package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCommandFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644))
}

const implementDef = `---
name: implement
category: development
description: Implement a feature with full quality gates
complexity: high
personas: [architect, backend]
flags:
  - name: loop
    type: bool
  - name: iterations
    short: i
    type: int
    default: "3"
requires-evidence: true
expectations:
  file-changes: true
  tests: true
  diff: true
---

Full implementation playbook body.
`

const analyzeDef = `---
name: analyze
category: analysis
complexity: medium
---

Analyze the codebase for structural issues and
report findings without modifying files.

More detail in a second paragraph.
`

func TestRegistry(t *testing.T) {
	t.Run("discovers commands and parses frontmatter", func(t *testing.T) {
		dir := t.TempDir()
		writeCommandFile(t, dir, "implement", implementDef)

		reg := NewRegistry(dir)
		meta, ok := reg.Get("implement")
		require.True(t, ok)

		assert.Equal(t, "development", meta.Category)
		assert.Equal(t, ComplexityHigh, meta.Complexity)
		assert.True(t, meta.RequiresEvidence)
		assert.True(t, meta.Expectations.RequiresDiff)
		require.Len(t, meta.Flags, 2)
		assert.Equal(t, "i", meta.Flags[1].Short)
	})

	t.Run("description falls back to first body paragraph", func(t *testing.T) {
		dir := t.TempDir()
		writeCommandFile(t, dir, "analyze", analyzeDef)

		reg := NewRegistry(dir)
		meta, ok := reg.Get("analyze")
		require.True(t, ok)
		assert.Equal(t, "Analyze the codebase for structural issues and report findings without modifying files.", meta.Description)
	})

	t.Run("missing directory yields empty registry", func(t *testing.T) {
		reg := NewRegistry(filepath.Join(t.TempDir(), "nope"))
		assert.Empty(t, reg.List())
	})

	t.Run("skips files without frontmatter", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("just notes"), 0o644))
		writeCommandFile(t, dir, "analyze", analyzeDef)

		reg := NewRegistry(dir)
		list := reg.List()
		require.Len(t, list, 1)
		assert.Equal(t, "analyze", list[0].Name)
	})

	t.Run("complete returns sorted matches with descriptions", func(t *testing.T) {
		dir := t.TempDir()
		writeCommandFile(t, dir, "implement", implementDef)
		writeCommandFile(t, dir, "analyze", analyzeDef)

		reg := NewRegistry(dir)
		all := reg.Complete("")
		require.Len(t, all, 2)
		assert.Equal(t, "analyze", all[0].Name)
		assert.Equal(t, "implement", all[1].Name)
		assert.Equal(t, "Implement a feature with full quality gates", all[1].Description)

		only := reg.Complete("imp")
		require.Len(t, only, 1)
		assert.Equal(t, "implement", only[0].Name)
	})

	t.Run("reload picks up new files", func(t *testing.T) {
		dir := t.TempDir()
		reg := NewRegistry(dir)
		assert.Empty(t, reg.List())

		writeCommandFile(t, dir, "implement", implementDef)
		require.NoError(t, reg.Reload())
		_, ok := reg.Get("implement")
		assert.True(t, ok)
	})
}

func TestRegistryResolve(t *testing.T) {
	dir := t.TempDir()
	writeCommandFile(t, dir, "implement", implementDef)
	reg := NewRegistry(dir)

	t.Run("parses with metadata validation", func(t *testing.T) {
		cmd, meta, err := reg.Resolve("/sc:implement --loop add auth")
		require.NoError(t, err)
		assert.True(t, cmd.Bool("loop"))
		assert.Equal(t, "3", cmd.Flags["iterations"])
		assert.Equal(t, "implement", meta.Name)
	})

	t.Run("unknown namespace", func(t *testing.T) {
		_, _, err := reg.Resolve("/xx:implement task")
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Message, "namespace")
	})

	t.Run("unknown command", func(t *testing.T) {
		_, _, err := reg.Resolve("/sc:teleport task")
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Message, "teleport")
	})
}
