// Package command implements the textual command surface: parsing
// "/ns:name --flags args" invocations, the on-disk command registry, and
// flag validation against each command's declared spec.
package command

import (
	"fmt"
	"sort"
	"strings"
)

// Command is a parsed, validated invocation. Immutable after parse.
type Command struct {
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Args      []string          `json:"args"`
	Flags     map[string]string `json:"flags"`
	Raw       string            `json:"raw_text"`
}

// FullName returns the canonical "/ns:name" head.
func (c *Command) FullName() string {
	return fmt.Sprintf("/%s:%s", c.Namespace, c.Name)
}

// Bool reports whether a boolean flag is set.
func (c *Command) Bool(name string) bool {
	return c.Flags[name] == "true"
}

// Flag returns a flag value and whether it was set (including by default).
func (c *Command) Flag(name string) (string, bool) {
	v, ok := c.Flags[name]
	return v, ok
}

// Text joins the positional arguments into the task text.
func (c *Command) Text() string {
	return strings.Join(c.Args, " ")
}

// Format renders the command in canonical textual form: head, flags in
// name order, then positionals. parse(Format(c)) reproduces c.
func (c *Command) Format() string {
	var sb strings.Builder
	sb.WriteString(c.FullName())

	names := make([]string, 0, len(c.Flags))
	for name := range c.Flags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := c.Flags[name]
		if value == "true" {
			sb.WriteString(" --" + name)
		} else {
			sb.WriteString(" --" + name + "=" + quoteIfNeeded(value))
		}
	}
	for _, arg := range c.Args {
		sb.WriteString(" " + quoteIfNeeded(arg))
	}
	return sb.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
