package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superclaude/engine/internal/provider"
)

// fakeAdapter satisfies provider.Adapter with canned responses per model.
type fakeAdapter struct {
	name      string
	available bool
	responses map[string]string // model id -> text
	err       error
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Available() bool { return f.available }

func (f *fakeAdapter) Chat(ctx context.Context, d provider.ModelDescriptor, prompt string, params provider.Params) (*provider.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	text, ok := f.responses[d.ModelID]
	if !ok {
		text = "ok"
	}
	return &provider.ChatResponse{Text: text, TokensIn: 10, TokensOut: 5, StopReason: "stop"}, nil
}

func testRegistry(available ...string) provider.Registry {
	avail := make(map[string]bool)
	for _, name := range available {
		avail[name] = true
	}
	reg := provider.Registry{}
	for _, name := range []string{"openai", "anthropic", "google", "xai"} {
		reg[name] = &fakeAdapter{name: name, available: avail[name]}
	}
	return reg
}

func TestRoute(t *testing.T) {
	t.Run("highest priority available model wins", func(t *testing.T) {
		r, err := New(testRegistry("anthropic", "openai"), nil)
		require.NoError(t, err)

		route, err := r.Route(TierDeepThinking, 1000)
		require.NoError(t, err)
		assert.Equal(t, "anthropic/claude-opus-4-1", route.Model.Ref())
		assert.False(t, route.Degraded)
	})

	t.Run("missing keys fall through and degrade", func(t *testing.T) {
		r, err := New(testRegistry("openai"), nil)
		require.NoError(t, err)

		route, err := r.Route(TierFastIteration, 1000)
		require.NoError(t, err)
		assert.Equal(t, "openai/gpt-4o-mini", route.Model.Ref())
		assert.False(t, route.Degraded, "same tier still serves")

		route, err = r.Route(TierLongContext, 1000)
		require.NoError(t, err)
		assert.True(t, route.Degraded, "long_context has no openai entry")
		assert.Equal(t, TierFallback, route.Tier)
	})

	t.Run("oversized prompt escalates to long context", func(t *testing.T) {
		small := map[string][]provider.ModelDescriptor{
			TierFastIteration: {{Provider: "anthropic", ModelID: "claude-haiku-4-5", MaxContextTokens: 200000, Priority: 1}},
		}
		r, err := New(testRegistry("anthropic", "google"), small)
		require.NoError(t, err)

		route, err := r.Route(TierFastIteration, 500000)
		require.NoError(t, err)
		assert.Equal(t, "google/gemini-2.5-pro", route.Model.Ref())
		assert.Equal(t, TierLongContext, route.Tier)
		assert.True(t, route.Degraded)
	})

	t.Run("no providers at all still routes degraded", func(t *testing.T) {
		r, err := New(testRegistry(), nil)
		require.NoError(t, err)

		route, err := r.Route(TierDeepThinking, 1000)
		require.NoError(t, err)
		assert.True(t, route.Degraded)
		assert.Equal(t, "anthropic/claude-opus-4-1", route.Model.Ref(),
			"the model that would have served is still named")
	})

	t.Run("prompt over every context window fails", func(t *testing.T) {
		r, err := New(testRegistry(), nil)
		require.NoError(t, err)

		_, err = r.Route(TierDeepThinking, 2000000)
		var noModel *NoModelError
		require.ErrorAs(t, err, &noModel)
		assert.Equal(t, TierDeepThinking, noModel.Tier)
	})

	t.Run("deterministic for fixed environment", func(t *testing.T) {
		r, err := New(testRegistry("anthropic", "openai", "google"), nil)
		require.NoError(t, err)

		first, err := r.Route(TierDeepThinking, 2000)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := r.Route(TierDeepThinking, 2000)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("override replaces tier models", func(t *testing.T) {
		custom := map[string][]provider.ModelDescriptor{
			TierFastIteration: {{Provider: "openai", ModelID: "custom-fast", MaxContextTokens: 64000, Priority: 1}},
		}
		r, err := New(testRegistry("openai"), custom)
		require.NoError(t, err)

		route, err := r.Route(TierFastIteration, 100)
		require.NoError(t, err)
		assert.Equal(t, "custom-fast", route.Model.ModelID)
	})

	t.Run("override cannot invent tiers", func(t *testing.T) {
		_, err := New(testRegistry(), map[string][]provider.ModelDescriptor{
			"warp_speed": {{Provider: "openai", ModelID: "x"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "warp_speed")
	})

	t.Run("unknown tier rejected", func(t *testing.T) {
		r, err := New(testRegistry("openai"), nil)
		require.NoError(t, err)
		_, err = r.Route("psychic", 10)
		require.Error(t, err)
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 26, EstimateTokens(string(make([]byte, 100))))
}
