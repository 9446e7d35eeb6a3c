// Package agent implements the agent registry and the weighted selector
// that matches a task context to the best-fitting specialist agent.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackAgent is returned whenever no specialist scores high enough.
const FallbackAgent = "general-purpose"

// Agent represents one specialist definition loaded from a markdown file
// with YAML frontmatter. The body is the agent's prompt and stays opaque.
type Agent struct {
	Name        string   `yaml:"name" json:"name"`
	Category    string   `yaml:"category" json:"category"`
	Description string   `yaml:"description" json:"description"`
	Triggers    []string `yaml:"triggers" json:"triggers,omitempty"`
	Tools       ToolList `yaml:"tools" json:"tools,omitempty"` // Omit if empty = all tools available
	Domains     []string `yaml:"domains" json:"domains,omitempty"`
	Languages   []string `yaml:"languages" json:"languages,omitempty"`
	Frameworks  []string `yaml:"frameworks" json:"frameworks,omitempty"`
	Priority    int      `yaml:"priority" json:"priority,omitempty"`
	FilePath    string   `yaml:"-" json:"-"`
}

// HasTools reports whether every required tool is available to the agent.
// An agent with no declared tools has access to all of them.
func (a *Agent) HasTools(required []string) bool {
	if len(a.Tools) == 0 {
		return true
	}
	available := make(map[string]bool, len(a.Tools))
	for _, tool := range a.Tools {
		available[strings.ToLower(tool)] = true
	}
	for _, req := range required {
		if !available[strings.ToLower(req)] {
			return false
		}
	}
	return true
}

// ToolList is a custom type that handles both comma-separated strings
// and YAML arrays for the tools field in agent frontmatter
type ToolList []string

// UnmarshalYAML implements custom unmarshaling for ToolList
// Accepts both formats:
// - Comma-separated string: "Read, Write, Edit"
// - YAML array: [Read, Write, Edit]
func (t *ToolList) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		parts := strings.Split(str, ",")
		*t = make(ToolList, 0, len(parts))
		for _, part := range parts {
			tool := strings.TrimSpace(part)
			if tool != "" {
				*t = append(*t, tool)
			}
		}
		return nil
	}

	var arr []string
	if err := value.Decode(&arr); err == nil {
		*t = ToolList(arr)
		return nil
	}

	return fmt.Errorf("tools must be either a comma-separated string or an array")
}

// MarshalJSON always serializes as a JSON array.
func (t ToolList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(t))
}
