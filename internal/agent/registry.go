package agent

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultMaxEntries bounds the parsed-agent cache. Entries past the bound
// are evicted least-recently-used and re-parsed from disk on next access.
const DefaultMaxEntries = 256

// Registry discovers agents from a directory of markdown definitions.
// Discovery is lazy: the directory index is built on first use and refreshed
// only by Reload. Parsed agents live in an LRU-bounded cache keyed by name.
type Registry struct {
	AgentsDir  string
	MaxEntries int

	mu      sync.RWMutex
	index   map[string]string // agent name -> file path
	cache   map[string]*list.Element
	order   *list.List // front = most recently used
	indexed bool
}

type cacheEntry struct {
	name  string
	agent *Agent
}

// NewRegistry creates a registry over agentsDir. If agentsDir is empty it
// defaults to .superclaude/agents under the working directory.
func NewRegistry(agentsDir string) *Registry {
	if agentsDir == "" {
		agentsDir = filepath.Join(".superclaude", "agents")
	}
	return &Registry{
		AgentsDir:  agentsDir,
		MaxEntries: DefaultMaxEntries,
		index:      make(map[string]string),
		cache:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Reload re-walks the agents directory, rebuilding the name index and
// dropping cached entries whose files disappeared.
func (r *Registry) Reload() error {
	fresh := make(map[string]string)

	if _, err := os.Stat(r.AgentsDir); os.IsNotExist(err) {
		r.mu.Lock()
		r.index = fresh
		r.indexed = true
		r.dropStaleLocked()
		r.mu.Unlock()
		return nil
	}

	err := filepath.Walk(r.AgentsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if path != r.AgentsDir && (base == "examples" || base == "logs") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") || filepath.Base(path) == "README.md" {
			return nil
		}
		name, err := peekAgentName(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse %s: %v\n", path, err)
			return nil
		}
		fresh[name] = path
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.index = fresh
	r.indexed = true
	r.dropStaleLocked()
	r.mu.Unlock()
	return nil
}

// dropStaleLocked evicts cached agents no longer present in the index.
func (r *Registry) dropStaleLocked() {
	for name, elem := range r.cache {
		if _, ok := r.index[name]; !ok {
			r.order.Remove(elem)
			delete(r.cache, name)
		}
	}
}

func (r *Registry) ensureIndexed() error {
	r.mu.RLock()
	indexed := r.indexed
	r.mu.RUnlock()
	if indexed {
		return nil
	}
	return r.Reload()
}

// Get returns the agent by name, parsing its file if not cached.
func (r *Registry) Get(name string) (*Agent, bool) {
	if err := r.ensureIndexed(); err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.cache[name]; ok {
		r.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).agent, true
	}

	path, ok := r.index[name]
	if !ok {
		return nil, false
	}
	agent, err := parseAgentFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse %s: %v\n", path, err)
		return nil, false
	}
	r.insertLocked(name, agent)
	return agent, true
}

// Exists checks if an agent with the given name is known.
func (r *Registry) Exists(name string) bool {
	if err := r.ensureIndexed(); err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok
}

// Names returns all known agent names, sorted.
func (r *Registry) Names() []string {
	if err := r.ensureIndexed(); err != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.index))
	for name := range r.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all agents sorted by name. Entries that fail to parse are
// skipped.
func (r *Registry) List() []*Agent {
	var out []*Agent
	for _, name := range r.Names() {
		if agent, ok := r.Get(name); ok {
			out = append(out, agent)
		}
	}
	return out
}

// insertLocked adds a parsed agent to the cache, evicting the least
// recently used entry when past MaxEntries.
func (r *Registry) insertLocked(name string, agent *Agent) {
	elem := r.order.PushFront(&cacheEntry{name: name, agent: agent})
	r.cache[name] = elem

	max := r.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	for len(r.cache) > max {
		oldest := r.order.Back()
		if oldest == nil {
			break
		}
		r.order.Remove(oldest)
		delete(r.cache, oldest.Value.(*cacheEntry).name)
	}
}

// peekAgentName parses just enough of an agent file to index it.
func peekAgentName(path string) (string, error) {
	agent, err := parseAgentFile(path)
	if err != nil {
		return "", err
	}
	return agent.Name, nil
}

// parseAgentFile parses a single agent file
func parseAgentFile(path string) (*Agent, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	frontmatter, _ := extractFrontmatter(content)
	if frontmatter == nil {
		return nil, fmt.Errorf("no frontmatter found in %s", path)
	}

	var agent Agent
	if err := yaml.Unmarshal(frontmatter, &agent); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	agent.FilePath = path

	if agent.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	return &agent, nil
}

// extractFrontmatter extracts YAML frontmatter from markdown content
// Returns the frontmatter and the remaining body
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := strings.Split(string(content), "\n")
	if len(lines) < 3 || lines[0] != "---" {
		return nil, content
	}

	for i := 1; i < len(lines); i++ {
		if lines[i] == "---" {
			frontmatter := []byte(strings.Join(lines[1:i], "\n"))
			body := []byte(strings.Join(lines[i+1:], "\n"))
			return frontmatter, body
		}
	}

	return nil, content
}
