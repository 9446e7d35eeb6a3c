package command

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Namespaces the registry serves. Unknown namespaces fail invocation.
var knownNamespaces = map[string]bool{
	"sc": true,
}

// KnownNamespace reports whether ns is part of the stable namespace set.
func KnownNamespace(ns string) bool {
	return knownNamespaces[ns]
}

// Completion pairs a command name with its one-line description for the
// complete(prefix) surface.
type Completion struct {
	Name        string
	Description string
}

// Registry discovers command definitions from a directory of markdown files
// with YAML frontmatter, caches them in memory, and serves lookups. The
// cache is invalidated only by an explicit Reload (or the optional watcher,
// which calls Reload on directory changes).
type Registry struct {
	dir string

	mu       sync.RWMutex
	commands map[string]*Metadata
	loaded   bool

	watcher *fsnotify.Watcher
	watchWG sync.WaitGroup
}

// NewRegistry creates a registry over the given commands directory.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:      dir,
		commands: make(map[string]*Metadata),
	}
}

// ensureLoaded performs lazy first-use discovery.
func (r *Registry) ensureLoaded() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Reload()
}

// Reload re-walks the commands directory and replaces the cache. A missing
// directory yields an empty registry, not an error.
func (r *Registry) Reload() error {
	fresh := make(map[string]*Metadata)

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.commands = fresh
			r.loaded = true
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read commands directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if entry.Name() == "README.md" {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		meta, err := parseCommandFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse %s: %v\n", path, err)
			continue
		}
		fresh[meta.Name] = meta
	}

	r.mu.Lock()
	r.commands = fresh
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Get returns the metadata for a command name.
func (r *Registry) Get(name string) (*Metadata, bool) {
	if err := r.ensureLoaded(); err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.commands[name]
	return meta, ok
}

// List returns all commands sorted by name.
func (r *Registry) List() []*Metadata {
	if err := r.ensureLoaded(); err != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Metadata, 0, len(r.commands))
	for _, meta := range r.commands {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Complete returns name-sorted completions for commands matching prefix.
func (r *Registry) Complete(prefix string) []Completion {
	var out []Completion
	for _, meta := range r.List() {
		if strings.HasPrefix(meta.Name, prefix) {
			out = append(out, Completion{Name: meta.Name, Description: meta.Description})
		}
	}
	return out
}

// Resolve parses raw, looks up its metadata, and re-parses with full flag
// validation. This is the single entry point the executor uses.
func (r *Registry) Resolve(raw string) (*Command, *Metadata, error) {
	namespace, name, err := ParseHead(raw)
	if err != nil {
		return nil, nil, err
	}
	if !KnownNamespace(namespace) {
		return nil, nil, NewParseError(raw, "unknown namespace %q", namespace)
	}
	meta, ok := r.Get(name)
	if !ok {
		return nil, nil, NewParseError(raw, "unknown command %q", name)
	}
	cmd, err := Parse(raw, meta)
	if err != nil {
		return nil, nil, err
	}
	return cmd, meta, nil
}

// Watch starts an fsnotify watcher that reloads the registry when the
// commands directory changes. Stop with StopWatching.
func (r *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	r.watcher = watcher
	r.watchWG.Add(1)
	go func() {
		defer r.watchWG.Done()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					_ = r.Reload()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// StopWatching closes the watcher started by Watch.
func (r *Registry) StopWatching() {
	if r.watcher != nil {
		r.watcher.Close()
		r.watchWG.Wait()
		r.watcher = nil
	}
}

// parseCommandFile reads a command definition: YAML frontmatter between ---
// markers, then a free-form markdown body the engine treats as opaque.
func parseCommandFile(path string) (*Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	frontmatter, body := splitFrontmatter(content)
	if frontmatter == nil {
		return nil, fmt.Errorf("no frontmatter found in %s", path)
	}

	var meta Metadata
	if err := yaml.Unmarshal(frontmatter, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	meta.FilePath = path

	if meta.Name == "" {
		return nil, fmt.Errorf("command name is required")
	}
	if meta.Complexity == "" {
		meta.Complexity = ComplexityMedium
	}
	if !meta.Complexity.Valid() {
		return nil, fmt.Errorf("invalid complexity %q", meta.Complexity)
	}
	for _, spec := range meta.Flags {
		if spec.Type == "" {
			return nil, fmt.Errorf("flag --%s missing type", spec.Name)
		}
	}
	if meta.Description == "" {
		meta.Description = firstParagraph(body)
	}
	return &meta, nil
}

// splitFrontmatter extracts YAML frontmatter from markdown content.
// Returns the frontmatter and the remaining body.
func splitFrontmatter(content []byte) ([]byte, []byte) {
	lines := strings.Split(string(content), "\n")
	if len(lines) < 3 || strings.TrimRight(lines[0], "\r") != "---" {
		return nil, content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == "---" {
			frontmatter := []byte(strings.Join(lines[1:i], "\n"))
			body := []byte(strings.Join(lines[i+1:], "\n"))
			return frontmatter, body
		}
	}
	return nil, content
}

// firstParagraph extracts the first paragraph of a markdown body via the
// goldmark AST, used as a description fallback when frontmatter omits one.
func firstParagraph(body []byte) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(body))
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if node.Kind() != ast.KindParagraph {
			continue
		}
		var sb bytes.Buffer
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Value(body))
				if t.SoftLineBreak() {
					sb.WriteByte(' ')
				}
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}
