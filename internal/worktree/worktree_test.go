package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestGitWorktree(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	t.Run("open creates isolated checkout on run branch", func(t *testing.T) {
		repo := initRepo(t)
		mgr := NewManager(repo, filepath.Join(repo, ".runs"))

		wt, err := mgr.Open("0123456789abcdef", "")
		require.NoError(t, err)
		defer wt.Discard() //nolint:errcheck

		assert.Equal(t, "engine/run-01234567", wt.Branch)
		assert.FileExists(t, filepath.Join(wt.Root, "main.go"))

		// Changes in the worktree do not leak into the repo.
		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "new.go"), []byte("package main\n"), 0o644))
		assert.NoFileExists(t, filepath.Join(repo, "new.go"))
	})

	t.Run("diff summarizes changes", func(t *testing.T) {
		repo := initRepo(t)
		mgr := NewManager(repo, filepath.Join(repo, ".runs"))
		wt, err := mgr.Open("run-diff", "")
		require.NoError(t, err)
		defer wt.Discard() //nolint:errcheck

		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "feature.go"), []byte("package main\n\nfunc Feature() {}\n"), 0o644))

		diff, err := wt.Diff()
		require.NoError(t, err)
		require.Len(t, diff.Files, 1)
		assert.Equal(t, "feature.go", diff.Files[0].Path)
		assert.Equal(t, 3, diff.Files[0].Additions)
	})

	t.Run("merge fast-forwards into the repo", func(t *testing.T) {
		repo := initRepo(t)
		mgr := NewManager(repo, filepath.Join(repo, ".runs"))
		wt, err := mgr.Open("run-merge", "")
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "feature.go"), []byte("package main\n"), 0o644))
		require.NoError(t, wt.Merge("add feature"))

		assert.True(t, wt.Closed())
		assert.FileExists(t, filepath.Join(repo, "feature.go"))
		assert.NoDirExists(t, wt.Root)
	})

	t.Run("diverged repo reports conflict", func(t *testing.T) {
		repo := initRepo(t)
		mgr := NewManager(repo, filepath.Join(repo, ".runs"))
		wt, err := mgr.Open("run-conflict", "")
		require.NoError(t, err)
		defer func() {
			if !wt.Closed() {
				wt.Discard() //nolint:errcheck
			}
		}()

		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "a.go"), []byte("package a\n"), 0o644))

		// Advance the repo independently so ff-only cannot apply.
		require.NoError(t, os.WriteFile(filepath.Join(repo, "b.go"), []byte("package b\n"), 0o644))
		for _, args := range [][]string{{"add", "."}, {"commit", "-m", "diverge"}} {
			cmd := exec.Command("git", args...)
			cmd.Dir = repo
			out, err := cmd.CombinedOutput()
			require.NoError(t, err, "%s", out)
		}

		err = wt.Merge("")
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, wt.Branch, conflict.Branch)
	})

	t.Run("double close is rejected", func(t *testing.T) {
		repo := initRepo(t)
		mgr := NewManager(repo, filepath.Join(repo, ".runs"))
		wt, err := mgr.Open("run-close", "")
		require.NoError(t, err)

		require.NoError(t, wt.Discard())
		var closed *ClosedError
		require.ErrorAs(t, wt.Discard(), &closed)
		require.ErrorAs(t, wt.Merge(""), &closed)
	})

	t.Run("duplicate open for same run fails", func(t *testing.T) {
		repo := initRepo(t)
		mgr := NewManager(repo, filepath.Join(repo, ".runs"))
		wt, err := mgr.Open("run-dup", "")
		require.NoError(t, err)
		defer wt.Discard() //nolint:errcheck

		_, err = mgr.Open("run-dup", "")
		require.Error(t, err)
	})
}

func TestCopyFallback(t *testing.T) {
	setupPlainDir := func(t *testing.T) string {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print('hi')\n"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "util.py"), []byte("x = 1\n"), 0o644))
		return dir
	}

	t.Run("open copies the tree", func(t *testing.T) {
		repo := setupPlainDir(t)
		mgr := NewManager(repo, t.TempDir())

		wt, err := mgr.Open("run-copy", "")
		require.NoError(t, err)
		defer wt.Discard() //nolint:errcheck

		assert.Empty(t, wt.Branch)
		assert.FileExists(t, filepath.Join(wt.Root, "app.py"))
		assert.FileExists(t, filepath.Join(wt.Root, "lib", "util.py"))
	})

	t.Run("diff reports added and modified files", func(t *testing.T) {
		repo := setupPlainDir(t)
		mgr := NewManager(repo, t.TempDir())
		wt, err := mgr.Open("run-copy-diff", "")
		require.NoError(t, err)
		defer wt.Discard() //nolint:errcheck

		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "app.py"), []byte("print('hi')\nprint('bye')\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "new.py"), []byte("y = 2\n"), 0o644))

		diff, err := wt.Diff()
		require.NoError(t, err)
		assert.Equal(t, []string{"app.py", "new.py"}, diff.ChangedPaths())
		assert.Equal(t, 2, diff.TotalAdditions)
		assert.Equal(t, 0, diff.TotalDeletions)
	})

	t.Run("merge copies back and closes", func(t *testing.T) {
		repo := setupPlainDir(t)
		mgr := NewManager(repo, t.TempDir())
		wt, err := mgr.Open("run-copy-merge", "")
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(wt.Root, "new.py"), []byte("y = 2\n"), 0o644))
		require.NoError(t, wt.Merge(""))

		assert.FileExists(t, filepath.Join(repo, "new.py"))
		assert.True(t, wt.Closed())
	})
}

func TestOrphanMarker(t *testing.T) {
	repo := t.TempDir()
	mgr := NewManager(repo, t.TempDir())
	wt, err := mgr.Open("run-orphan", "")
	require.NoError(t, err)
	defer wt.Discard() //nolint:errcheck

	wt.markOrphan(os.ErrPermission)

	marker := filepath.Join(filepath.Dir(wt.Root), "worktree.orphan")
	require.FileExists(t, marker)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Contains(t, string(data), os.ErrPermission.Error())
}
