package agent

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TaskContext captures what the engine knows about the task before
// selecting an agent: free text, derived keywords, and environment hints.
type TaskContext struct {
	Text          string
	Keywords      []string
	Categories    []string
	Languages     []string
	Frameworks    []string
	RequiredTools []string
}

// Empty reports whether the context carries no usable signal.
func (tc TaskContext) Empty() bool {
	return len(tc.Keywords) == 0 && len(tc.Categories) == 0 && len(tc.Languages) == 0
}

var extensionLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".kt":   "kotlin",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
}

// manifestFrameworks maps well-known project files at the repo root to the
// framework hints they imply.
var manifestFrameworks = map[string][]string{
	"go.mod":           {"go"},
	"package.json":     {"node"},
	"Cargo.toml":       {"rust"},
	"requirements.txt": {"python"},
	"pyproject.toml":   {"python"},
	"pom.xml":          {"java", "maven"},
	"build.gradle":     {"java", "gradle"},
	"Gemfile":          {"ruby", "rails"},
}

// categoryKeywords implies task categories from trigger words in the text.
var categoryKeywords = map[string][]string{
	"security":       {"security", "vulnerability", "auth", "authentication", "secret", "cve", "exploit"},
	"testing":        {"test", "tests", "coverage", "regression", "flaky"},
	"frontend":       {"ui", "frontend", "component", "css", "react", "render"},
	"backend":        {"api", "backend", "server", "endpoint", "database", "queue"},
	"performance":    {"performance", "latency", "slow", "optimize", "profile", "memory"},
	"documentation":  {"docs", "documentation", "readme", "changelog"},
	"refactoring":    {"refactor", "cleanup", "restructure", "simplify"},
	"infrastructure": {"deploy", "docker", "kubernetes", "ci", "pipeline", "terraform"},
}

// DeriveContext builds a TaskContext from the task text, the files it
// touches, and the project root.
func DeriveContext(text string, files []string, rootDir string) TaskContext {
	tc := TaskContext{Text: text}
	tc.Keywords = tokenizeKeywords(text)

	langSet := make(map[string]bool)
	for _, f := range files {
		if lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(f))]; ok {
			langSet[lang] = true
		}
	}
	tc.Languages = sortedKeys(langSet)

	fwSet := make(map[string]bool)
	if rootDir != "" {
		for manifest, fws := range manifestFrameworks {
			if _, err := os.Stat(filepath.Join(rootDir, manifest)); err == nil {
				for _, fw := range fws {
					fwSet[fw] = true
				}
			}
		}
	}
	tc.Frameworks = sortedKeys(fwSet)

	kwSet := make(map[string]bool, len(tc.Keywords))
	for _, kw := range tc.Keywords {
		kwSet[kw] = true
	}
	catSet := make(map[string]bool)
	for category, words := range categoryKeywords {
		for _, w := range words {
			if kwSet[w] {
				catSet[category] = true
				break
			}
		}
	}
	tc.Categories = sortedKeys(catSet)

	return tc
}

// tokenizeKeywords lowercases and splits text into alphanumeric tokens,
// dropping single characters.
func tokenizeKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
