package command

import (
	"fmt"
	"strconv"
)

// Complexity buckets commands by how much orchestration they need.
type Complexity string

// Command complexity levels.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid reports whether c is a recognized complexity.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// FlagType enumerates the value shapes a flag spec may declare.
type FlagType string

// Flag value types.
const (
	FlagBool   FlagType = "bool"
	FlagString FlagType = "string"
	FlagInt    FlagType = "int"
	FlagEnum   FlagType = "enum"
)

// FlagSpec declares one flag a command accepts.
type FlagSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Short       string   `yaml:"short,omitempty" json:"short,omitempty"`
	Type        FlagType `yaml:"type" json:"type"`
	Default     string   `yaml:"default,omitempty" json:"default,omitempty"`
	Allowed     []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// validate checks a raw value against the spec.
func (fs FlagSpec) validate(value string) error {
	switch fs.Type {
	case FlagBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("flag --%s is boolean, got %q", fs.Name, value)
		}
	case FlagInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("flag --%s expects an integer, got %q", fs.Name, value)
		}
	case FlagEnum:
		for _, allowed := range fs.Allowed {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("flag --%s expects one of %v, got %q", fs.Name, fs.Allowed, value)
	}
	return nil
}

// Expectations declare what artifacts a command's execution should produce.
type Expectations struct {
	ExpectsFileChanges bool `yaml:"file-changes" json:"expects_file_changes"`
	ExpectsTests       bool `yaml:"tests" json:"expects_tests"`
	RequiresDiff       bool `yaml:"diff" json:"requires_diff"`
}

// Metadata describes a registered command. Loaded from the frontmatter of a
// command definition file; the markdown body (the playbook prompt) stays
// opaque to the engine.
type Metadata struct {
	Name             string       `yaml:"name" json:"name"`
	Category         string       `yaml:"category" json:"category"`
	Description      string       `yaml:"description" json:"description"`
	Complexity       Complexity   `yaml:"complexity" json:"complexity"`
	MCPServers       []string     `yaml:"mcp-servers" json:"mcp_servers,omitempty"`
	Personas         []string     `yaml:"personas" json:"personas,omitempty"`
	Flags            []FlagSpec   `yaml:"flags" json:"flags_spec,omitempty"`
	RequiresEvidence bool         `yaml:"requires-evidence" json:"requires_evidence"`
	DefaultAgent     string       `yaml:"default-agent" json:"default_agent,omitempty"`
	Expectations     Expectations `yaml:"expectations" json:"expectations"`

	// FilePath records where the definition was loaded from.
	FilePath string `yaml:"-" json:"-"`
}

// flagByName resolves a long flag name against the spec.
func (m *Metadata) flagByName(name string) (FlagSpec, bool) {
	for _, fs := range m.Flags {
		if fs.Name == name {
			return fs, true
		}
	}
	return FlagSpec{}, false
}

// flagByShort resolves a short flag letter against the spec.
func (m *Metadata) flagByShort(short string) (FlagSpec, bool) {
	for _, fs := range m.Flags {
		if fs.Short == short {
			return fs, true
		}
	}
	return FlagSpec{}, false
}
