package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func implementMeta() *Metadata {
	return &Metadata{
		Name:       "implement",
		Category:   "development",
		Complexity: ComplexityHigh,
		Flags: []FlagSpec{
			{Name: "loop", Type: FlagBool},
			{Name: "consensus", Type: FlagBool},
			{Name: "iterations", Short: "i", Type: FlagInt, Default: "3"},
			{Name: "focus", Type: FlagEnum, Allowed: []string{"security", "performance", "quality"}},
			{Name: "scope", Type: FlagString},
		},
	}
}

func TestParseHead(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		namespace string
		command   string
		wantErr   bool
	}{
		{name: "simple", input: "/sc:implement add auth", namespace: "sc", command: "implement"},
		{name: "hyphenated name", input: "/sc:spec-panel review", namespace: "sc", command: "spec-panel"},
		{name: "no slash", input: "sc:implement", wantErr: true},
		{name: "missing name", input: "/sc:", wantErr: true},
		{name: "uppercase rejected", input: "/SC:implement", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
		{name: "leading digit", input: "/sc:9lives", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, name, err := ParseHead(tt.input)
			if tt.wantErr {
				var perr *ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.input, perr.Input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.namespace, ns)
			assert.Equal(t, tt.command, name)
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("bool and value flags", func(t *testing.T) {
		cmd, err := Parse("/sc:implement --loop --iterations=5 add user auth", implementMeta())
		require.NoError(t, err)

		assert.True(t, cmd.Bool("loop"))
		assert.Equal(t, "5", cmd.Flags["iterations"])
		assert.Equal(t, "add user auth", cmd.Text())
	})

	t.Run("key value form", func(t *testing.T) {
		cmd, err := Parse("/sc:implement --focus security fix the bug", implementMeta())
		require.NoError(t, err)
		assert.Equal(t, "security", cmd.Flags["focus"])
		assert.Equal(t, []string{"fix", "the", "bug"}, cmd.Args)
	})

	t.Run("short flag", func(t *testing.T) {
		cmd, err := Parse("/sc:implement -i 4 task", implementMeta())
		require.NoError(t, err)
		assert.Equal(t, "4", cmd.Flags["iterations"])
	})

	t.Run("defaults fill omitted flags", func(t *testing.T) {
		cmd, err := Parse("/sc:implement task", implementMeta())
		require.NoError(t, err)
		assert.Equal(t, "3", cmd.Flags["iterations"])
		_, set := cmd.Flags["loop"]
		assert.False(t, set, "bool without default stays unset")
	})

	t.Run("double dash ends flags", func(t *testing.T) {
		cmd, err := Parse("/sc:implement --loop -- --not-a-flag trailing", implementMeta())
		require.NoError(t, err)
		assert.Equal(t, []string{"--not-a-flag", "trailing"}, cmd.Args)
	})

	t.Run("quoted argument keeps spaces", func(t *testing.T) {
		cmd, err := Parse(`/sc:implement --scope="auth module" "do the thing"`, implementMeta())
		require.NoError(t, err)
		assert.Equal(t, "auth module", cmd.Flags["scope"])
		assert.Equal(t, []string{"do the thing"}, cmd.Args)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := Parse("/sc:implement --turbo", implementMeta())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Message, "--turbo")
	})

	t.Run("enum rejects bad value", func(t *testing.T) {
		_, err := Parse("/sc:implement --focus speed", implementMeta())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Message, "--focus")
	})

	t.Run("int rejects non numeric", func(t *testing.T) {
		_, err := Parse("/sc:implement --iterations=lots", implementMeta())
		require.Error(t, err)
	})

	t.Run("duplicate flag rejected", func(t *testing.T) {
		_, err := Parse("/sc:implement --loop --loop", implementMeta())
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Message, "twice")
	})

	t.Run("value flag missing value", func(t *testing.T) {
		_, err := Parse("/sc:implement --focus", implementMeta())
		require.Error(t, err)
	})

	t.Run("unterminated quote", func(t *testing.T) {
		_, err := Parse(`/sc:implement "half open`, implementMeta())
		require.Error(t, err)
	})

	t.Run("nil metadata accepts long string flags", func(t *testing.T) {
		cmd, err := Parse("/sc:implement --anything=works task", nil)
		require.NoError(t, err)
		assert.Equal(t, "works", cmd.Flags["anything"])
	})
}

func TestFormatRoundTrip(t *testing.T) {
	meta := implementMeta()
	inputs := []string{
		"/sc:implement --loop --iterations=5 add user auth",
		`/sc:implement --scope="auth module" --focus=security "quoted arg" plain`,
		"/sc:implement -i 2 --consensus task",
		"/sc:implement task with several words",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := Parse(input, meta)
			require.NoError(t, err)

			second, err := Parse(first.Format(), meta)
			require.NoError(t, err)

			assert.Equal(t, first.Namespace, second.Namespace)
			assert.Equal(t, first.Name, second.Name)
			assert.Equal(t, first.Args, second.Args)
			assert.Equal(t, first.Flags, second.Flags)
		})
	}
}
