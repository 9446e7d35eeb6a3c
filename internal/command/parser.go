package command

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseError is a structured invocation error. The CLI maps it to exit
// code 3 and prints it verbatim; no run record is created for one.
type ParseError struct {
	Input   string
	Message string
}

// NewParseError builds a ParseError for the given input.
func NewParseError(input, format string, args ...any) *ParseError {
	return &ParseError{Input: input, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid invocation %q: %s", e.Input, e.Message)
}

var headPattern = regexp.MustCompile(`^/([a-z][a-z0-9-]*):([a-z][a-z0-9-]*)$`)

// ParseHead splits the leading "/ns:name" token without metadata. The
// registry uses it to look up the command before full flag validation.
func ParseHead(raw string) (namespace, name string, err error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return "", "", NewParseError(raw, "%s", err.Error())
	}
	if len(tokens) == 0 {
		return "", "", NewParseError(raw, "empty invocation")
	}
	m := headPattern.FindStringSubmatch(tokens[0])
	if m == nil {
		return "", "", NewParseError(raw, "expected /namespace:name, got %q", tokens[0])
	}
	return m[1], m[2], nil
}

// Parse parses and validates raw against the command's metadata. Flags take
// the forms --flag, --key=value, --key value, and -k; "--" terminates flag
// parsing. Unknown flags and bad values produce a *ParseError. Defaults from
// the spec fill flags the invocation omitted.
func Parse(raw string, meta *Metadata) (*Command, error) {
	namespace, name, err := ParseHead(raw)
	if err != nil {
		return nil, err
	}
	if meta != nil && meta.Name != name {
		return nil, NewParseError(raw, "metadata mismatch: %q vs %q", meta.Name, name)
	}

	tokens, _ := tokenize(raw) // ParseHead already validated tokenization
	cmd := &Command{
		Namespace: namespace,
		Name:      name,
		Flags:     make(map[string]string),
		Raw:       raw,
	}

	flagsDone := false
	i := 1
	for i < len(tokens) {
		token := tokens[i]

		switch {
		case flagsDone || !strings.HasPrefix(token, "-") || token == "-":
			cmd.Args = append(cmd.Args, token)
			i++

		case token == "--":
			flagsDone = true
			i++

		case strings.HasPrefix(token, "--"):
			consumed, err := parseLongFlag(cmd, meta, tokens, i)
			if err != nil {
				return nil, err
			}
			i += consumed

		default: // short flag "-k"
			short := strings.TrimPrefix(token, "-")
			spec, ok := lookupShort(meta, short)
			if !ok {
				return nil, NewParseError(raw, "unknown flag -%s", short)
			}
			if spec.Type != FlagBool {
				if i+1 >= len(tokens) {
					return nil, NewParseError(raw, "flag -%s requires a value", short)
				}
				if err := setFlag(cmd, spec, tokens[i+1]); err != nil {
					return nil, NewParseError(raw, "%s", err.Error())
				}
				i += 2
			} else {
				if err := setFlag(cmd, spec, "true"); err != nil {
					return nil, NewParseError(raw, "%s", err.Error())
				}
				i++
			}
		}
	}

	// Fill declared defaults for flags the invocation omitted.
	if meta != nil {
		for _, spec := range meta.Flags {
			if _, set := cmd.Flags[spec.Name]; !set && spec.Default != "" {
				cmd.Flags[spec.Name] = spec.Default
			}
		}
	}

	return cmd, nil
}

// parseLongFlag handles --flag / --key=value / --key value. Returns how many
// tokens were consumed.
func parseLongFlag(cmd *Command, meta *Metadata, tokens []string, i int) (int, error) {
	raw := cmd.Raw
	body := strings.TrimPrefix(tokens[i], "--")

	name, inline, hasInline := strings.Cut(body, "=")
	spec, ok := lookupLong(meta, name)
	if !ok {
		return 0, NewParseError(raw, "unknown flag --%s", name)
	}

	if hasInline {
		if err := setFlag(cmd, spec, inline); err != nil {
			return 0, NewParseError(raw, "%s", err.Error())
		}
		return 1, nil
	}

	if spec.Type == FlagBool {
		if err := setFlag(cmd, spec, "true"); err != nil {
			return 0, NewParseError(raw, "%s", err.Error())
		}
		return 1, nil
	}

	// Value flag in "--key value" form.
	if i+1 >= len(tokens) || strings.HasPrefix(tokens[i+1], "--") {
		return 0, NewParseError(raw, "flag --%s requires a value", name)
	}
	if err := setFlag(cmd, spec, tokens[i+1]); err != nil {
		return 0, NewParseError(raw, "%s", err.Error())
	}
	return 2, nil
}

func lookupLong(meta *Metadata, name string) (FlagSpec, bool) {
	if meta == nil {
		// Without metadata every long flag is accepted as a string; the
		// executor validates again once metadata is resolved.
		return FlagSpec{Name: name, Type: FlagString}, true
	}
	return meta.flagByName(name)
}

func lookupShort(meta *Metadata, short string) (FlagSpec, bool) {
	if meta == nil {
		return FlagSpec{}, false
	}
	return meta.flagByShort(short)
}

func setFlag(cmd *Command, spec FlagSpec, value string) error {
	if err := spec.validate(value); err != nil {
		return err
	}
	if _, dup := cmd.Flags[spec.Name]; dup {
		return fmt.Errorf("flag --%s given twice", spec.Name)
	}
	cmd.Flags[spec.Name] = value
	return nil
}

// tokenize splits the invocation on whitespace, honoring double and single
// quotes. Quotes may appear mid-token; backslash escapes a double quote.
func tokenize(input string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inToken := false
	var quote byte

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' && i+1 < len(input) && input[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inToken = true
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		default:
			current.WriteByte(c)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return tokens, nil
}
