package worktree

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are never copied or diffed in copy mode.
var skipDirs = map[string]bool{
	".git":   true,
	".runs":  true,
	".cache": true,
}

// copyTree mirrors src into dst, preserving file modes.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if !d.Type().IsRegular() {
			return nil // symlinks and specials stay behind
		}
		return copyFile(path, filepath.Join(dst, rel), d)
	})
}

func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// diffTrees compares two directory trees by content, producing the same
// summary shape as git numstat with line-level counts approximated by a
// line diff of each changed file.
func diffTrees(base, modified string) (DiffSummary, error) {
	baseFiles, err := listFiles(base)
	if err != nil {
		return DiffSummary{}, err
	}
	modFiles, err := listFiles(modified)
	if err != nil {
		return DiffSummary{}, err
	}

	paths := make(map[string]bool, len(baseFiles)+len(modFiles))
	for p := range baseFiles {
		paths[p] = true
	}
	for p := range modFiles {
		paths[p] = true
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var summary DiffSummary
	for _, rel := range sorted {
		inBase, inMod := baseFiles[rel], modFiles[rel]
		var before, after []byte
		if inBase {
			before, _ = os.ReadFile(filepath.Join(base, rel))
		}
		if inMod {
			after, _ = os.ReadFile(filepath.Join(modified, rel))
		}
		if inBase && inMod && bytes.Equal(before, after) {
			continue
		}

		add, del := lineCounts(before, after)
		summary.Files = append(summary.Files, FileChange{Path: rel, Additions: add, Deletions: del})
		summary.TotalAdditions += add
		summary.TotalDeletions += del
	}
	return summary, nil
}

// listFiles maps relative paths of regular files under root.
func listFiles(root string) (map[string]bool, error) {
	out := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[rel] = true
		return nil
	})
	return out, err
}

// lineCounts approximates additions and deletions with a set diff over
// lines. Exact enough for change summaries; not a real patience diff.
func lineCounts(before, after []byte) (additions, deletions int) {
	beforeLines := lineSet(before)
	afterLines := lineSet(after)

	for line, n := range afterLines {
		if m := beforeLines[line]; n > m {
			additions += n - m
		}
	}
	for line, n := range beforeLines {
		if m := afterLines[line]; n > m {
			deletions += n - m
		}
	}
	return additions, deletions
}

func lineSet(data []byte) map[string]int {
	if len(data) == 0 {
		return map[string]int{}
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	out := make(map[string]int, len(lines))
	for _, line := range lines {
		out[line]++
	}
	return out
}
