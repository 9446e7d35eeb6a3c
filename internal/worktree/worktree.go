// Package worktree isolates a run's file changes. Git repositories get a
// real `git worktree` on a run branch; everything else falls back to a
// plain directory copy with diffing by content digest.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Worktree is an isolated checkout for one run. It must be closed (merged
// or discarded) exactly once; cross-run reuse is forbidden.
type Worktree struct {
	// RunID ties the worktree to its run.
	RunID string
	// Root is the directory stages operate in.
	Root string
	// Branch is the run branch name; empty in copy mode.
	Branch string
	// BaseRef is what the worktree was opened from.
	BaseRef string

	mgr    *Manager
	git    bool
	mu     sync.Mutex
	closed bool
}

// FileChange is one entry of a diff summary.
type FileChange struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// DiffSummary is the deterministic change report for a worktree.
type DiffSummary struct {
	Files          []FileChange `json:"files"`
	TotalAdditions int          `json:"total_additions"`
	TotalDeletions int          `json:"total_deletions"`
}

// ChangedPaths lists the file paths in stable order.
func (d DiffSummary) ChangedPaths() []string {
	out := make([]string, len(d.Files))
	for i, f := range d.Files {
		out[i] = f.Path
	}
	return out
}

// ConflictError reports a merge that could not fast-forward.
type ConflictError struct {
	Branch string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge of %s is not fast-forward: %s", e.Branch, e.Detail)
}

// ClosedError reports a second close of the same worktree.
type ClosedError struct {
	RunID string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("worktree for run %s already closed", e.RunID)
}

// Manager opens and closes worktrees under a repository root.
type Manager struct {
	// RepoDir is the project being operated on.
	RepoDir string
	// RunsDir is where worktrees are materialized, typically
	// <metrics>/.runs.
	RunsDir string
}

// NewManager builds a manager for a repository.
func NewManager(repoDir, runsDir string) *Manager {
	return &Manager{RepoDir: repoDir, RunsDir: runsDir}
}

// Open creates the isolated checkout for a run. baseRef defaults to HEAD
// in git mode and is ignored in copy mode.
func (m *Manager) Open(runID, baseRef string) (*Worktree, error) {
	root := filepath.Join(m.RunsDir, runID, "worktree")
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("worktree for run %s already exists", runID)
	}
	if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return nil, err
	}

	if m.IsGitRepo() {
		return m.openGit(runID, baseRef, root)
	}
	return m.openCopy(runID, root)
}

// IsGitRepo reports whether the managed directory is a tracked repository.
// Required-evidence commands refuse to run outside one.
func (m *Manager) IsGitRepo() bool {
	out, err := m.gitIn(m.RepoDir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func (m *Manager) openGit(runID, baseRef, root string) (*Worktree, error) {
	if baseRef == "" {
		baseRef = "HEAD"
	}
	branch := runBranch(runID)

	if _, err := m.gitIn(m.RepoDir, "worktree", "add", "-b", branch, root, baseRef); err != nil {
		return nil, fmt.Errorf("git worktree add: %w", err)
	}
	return &Worktree{
		RunID:   runID,
		Root:    root,
		Branch:  branch,
		BaseRef: baseRef,
		mgr:     m,
		git:     true,
	}, nil
}

// openCopy mirrors the repository into the run directory. Good enough for
// non-git targets; merge degrades to a copy-back.
func (m *Manager) openCopy(runID, root string) (*Worktree, error) {
	if err := copyTree(m.RepoDir, root); err != nil {
		return nil, fmt.Errorf("copy worktree: %w", err)
	}
	return &Worktree{RunID: runID, Root: root, mgr: m}, nil
}

// runBranch derives the run branch name from the first 8 id characters.
func runBranch(runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return "engine/run-" + short
}

// Diff summarizes the changes made inside the worktree.
func (w *Worktree) Diff() (DiffSummary, error) {
	if w.git {
		return w.diffGit()
	}
	return diffTrees(w.mgr.RepoDir, w.Root)
}

func (w *Worktree) diffGit() (DiffSummary, error) {
	// Stage everything first so numstat sees untracked files too.
	if _, err := w.mgr.gitIn(w.Root, "add", "-A", "-N"); err != nil {
		return DiffSummary{}, err
	}
	out, err := w.mgr.gitIn(w.Root, "diff", "--numstat", w.BaseRef)
	if err != nil {
		return DiffSummary{}, err
	}
	return parseNumstat(out), nil
}

// parseNumstat reads `git diff --numstat` output. Binary files report "-"
// counts and are recorded with zero line counts.
func parseNumstat(out string) DiffSummary {
	var summary DiffSummary
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		add, _ := strconv.Atoi(parts[0])
		del, _ := strconv.Atoi(parts[1])
		summary.Files = append(summary.Files, FileChange{
			Path:      strings.Join(parts[2:], " "),
			Additions: add,
			Deletions: del,
		})
		summary.TotalAdditions += add
		summary.TotalDeletions += del
	}
	return summary
}

// Merge lands the worktree's changes back into the repository. Git mode
// commits the run branch and fast-forwards; a non-fast-forward state
// returns ConflictError with no silent resolution. Copy mode copies the
// tree back.
func (w *Worktree) Merge(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return &ClosedError{RunID: w.RunID}
	}

	if !w.git {
		if err := copyTree(w.Root, w.mgr.RepoDir); err != nil {
			return err
		}
		return w.cleanupLocked()
	}

	if _, err := w.mgr.gitIn(w.Root, "add", "-A"); err != nil {
		return err
	}
	if message == "" {
		message = "engine: run " + w.RunID
	}
	// Nothing to commit is fine; the branch simply stays at base.
	if out, err := w.mgr.gitIn(w.Root, "status", "--porcelain"); err == nil && strings.TrimSpace(out) != "" {
		if _, err := w.mgr.gitIn(w.Root, "commit", "-m", message); err != nil {
			return err
		}
	}

	if out, err := w.mgr.gitIn(w.mgr.RepoDir, "merge", "--ff-only", w.Branch); err != nil {
		return &ConflictError{Branch: w.Branch, Detail: strings.TrimSpace(out)}
	}
	return w.cleanupLocked()
}

// Discard throws the worktree away without touching the repository.
func (w *Worktree) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return &ClosedError{RunID: w.RunID}
	}
	return w.cleanupLocked()
}

// Closed reports whether the worktree has been merged or discarded.
func (w *Worktree) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Worktree) cleanupLocked() error {
	w.closed = true
	if w.git {
		if _, err := w.mgr.gitIn(w.mgr.RepoDir, "worktree", "remove", "--force", w.Root); err != nil {
			// Fall back to a plain delete plus prune.
			if rmErr := os.RemoveAll(w.Root); rmErr != nil {
				w.markOrphan(rmErr)
			} else {
				w.mgr.gitIn(w.mgr.RepoDir, "worktree", "prune") //nolint:errcheck
			}
		}
		w.mgr.gitIn(w.mgr.RepoDir, "branch", "-D", w.Branch) //nolint:errcheck
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		w.markOrphan(err)
	}
	return nil
}

// markOrphan records a worktree that discard could not remove, so a later
// sweep can find and garbage-collect it.
func (w *Worktree) markOrphan(cause error) {
	marker := filepath.Join(filepath.Dir(w.Root), "worktree.orphan")
	os.WriteFile(marker, []byte(cause.Error()+"\n"), 0o644) //nolint:errcheck
}

// gitIn runs git with the given args inside dir, returning combined output.
func (m *Manager) gitIn(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
