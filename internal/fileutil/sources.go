// Package fileutil provides small filesystem helpers shared by the engine's
// components.
package fileutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are never descended into when scanning a project tree.
var skipDirs = map[string]bool{
	".git":         true,
	".runs":        true,
	".cache":       true,
	".superclaude": true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"target":       true,
}

// sourceExtensions mark files worth reporting as project source.
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true,
	".tsx": true, ".rs": true, ".java": true, ".rb": true, ".c": true,
	".cpp": true, ".h": true, ".cs": true, ".kt": true, ".php": true,
	".sh": true, ".sql": true, ".yaml": true, ".yml": true, ".toml": true,
	".json": true, ".md": true,
}

// ProjectFiles lists up to limit source file paths under root, relative to
// root and sorted. Hidden and dependency directories are skipped. The
// result feeds task context derivation, so completeness matters less than
// a representative sample; limit <= 0 means no bound.
func ProjectFiles(root string, limit int) []string {
	var files []string

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		files = append(files, rel)
		if limit > 0 && len(files) >= limit {
			return fs.SkipAll
		}
		return nil
	})

	sort.Strings(files)
	return files
}
