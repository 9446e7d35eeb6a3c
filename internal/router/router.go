// Package router maps task tiers to concrete models and runs multi-model
// consensus queries. Routing is deterministic for a fixed environment.
package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/superclaude/engine/internal/provider"
)

// Task tiers. The set is closed; configuration may override a tier's model
// list but cannot invent new tiers.
const (
	TierDeepThinking  = "deep_thinking"
	TierLongContext   = "long_context"
	TierFastIteration = "fast_iteration"
	TierFallback      = "fallback"
)

// fallthroughOrder defines which tiers a request may degrade into, per
// requested tier.
// long_context appears early in every chain so an oversized prompt
// escalates there before degrading further.
var fallthroughOrder = map[string][]string{
	TierDeepThinking:  {TierDeepThinking, TierLongContext, TierFastIteration, TierFallback},
	TierLongContext:   {TierLongContext, TierFallback},
	TierFastIteration: {TierFastIteration, TierLongContext, TierFallback},
	TierFallback:      {TierFallback, TierLongContext},
}

// defaultTiers is the built-in model table.
func defaultTiers() map[string][]provider.ModelDescriptor {
	return map[string][]provider.ModelDescriptor{
		TierDeepThinking: {
			{Provider: "anthropic", ModelID: "claude-opus-4-1", MaxContextTokens: 200000, Priority: 100, Capabilities: []provider.Capability{provider.CapThinking}},
			{Provider: "openai", ModelID: "o3", MaxContextTokens: 200000, Priority: 90, Capabilities: []provider.Capability{provider.CapThinking}},
			{Provider: "xai", ModelID: "grok-4", MaxContextTokens: 256000, Priority: 80, Capabilities: []provider.Capability{provider.CapThinking}},
		},
		TierLongContext: {
			{Provider: "google", ModelID: "gemini-2.5-pro", MaxContextTokens: 1000000, Priority: 100, Capabilities: []provider.Capability{provider.CapLongContext}},
			{Provider: "anthropic", ModelID: "claude-sonnet-4-5", MaxContextTokens: 200000, Priority: 90, Capabilities: []provider.Capability{provider.CapLongContext}},
		},
		TierFastIteration: {
			{Provider: "anthropic", ModelID: "claude-haiku-4-5", MaxContextTokens: 200000, Priority: 100, Capabilities: []provider.Capability{provider.CapFast}},
			{Provider: "openai", ModelID: "gpt-4o-mini", MaxContextTokens: 128000, Priority: 90, Capabilities: []provider.Capability{provider.CapFast}},
			{Provider: "google", ModelID: "gemini-2.5-flash", MaxContextTokens: 1000000, Priority: 80, Capabilities: []provider.Capability{provider.CapFast}},
		},
		TierFallback: {
			{Provider: "openai", ModelID: "gpt-4o", MaxContextTokens: 128000, Priority: 100},
			{Provider: "anthropic", ModelID: "claude-sonnet-4-5", MaxContextTokens: 200000, Priority: 90},
		},
	}
}

// Route is the outcome of one routing decision.
type Route struct {
	Model provider.ModelDescriptor
	// Tier is the tier the model was actually taken from.
	Tier string
	// Degraded marks that the requested tier could not serve and the
	// router fell through.
	Degraded bool
}

// NoModelError reports that no tier could serve the request.
type NoModelError struct {
	Tier         string
	PromptTokens int
}

func (e *NoModelError) Error() string {
	return fmt.Sprintf("no available model for tier %s (prompt ~%d tokens)", e.Tier, e.PromptTokens)
}

// Router resolves tiers against the adapter registry.
type Router struct {
	adapters provider.Registry
	tiers    map[string][]provider.ModelDescriptor
}

// New builds a router over the adapter registry. overrides replaces model
// lists for known tiers; unknown tier names are rejected.
func New(adapters provider.Registry, overrides map[string][]provider.ModelDescriptor) (*Router, error) {
	tiers := defaultTiers()
	for tier, models := range overrides {
		if _, ok := tiers[tier]; !ok {
			return nil, fmt.Errorf("unknown tier %q in model table override", tier)
		}
		if len(models) > 0 {
			tiers[tier] = models
		}
	}
	for _, models := range tiers {
		sort.SliceStable(models, func(i, j int) bool { return models[i].Priority > models[j].Priority })
	}
	return &Router{adapters: adapters, tiers: tiers}, nil
}

// Adapter returns the adapter serving a descriptor.
func (r *Router) Adapter(d provider.ModelDescriptor) (provider.Adapter, bool) {
	return r.adapters.Get(d.Provider)
}

// Route picks the model for a tier and estimated prompt size. Within a
// tier: highest priority first, skipping models whose context window is too
// small and models whose provider has no key. If nothing in the tier fits
// the context, the request escalates to long_context before degrading
// through the fall-through chain. When no provider anywhere in the chain is
// available the route still names the model that would have served, marked
// Degraded, so the run can proceed without network calls; NoModelError is
// reserved for prompts no configured context window fits.
func (r *Router) Route(tier string, promptTokens int) (Route, error) {
	chain, ok := fallthroughOrder[tier]
	if !ok {
		return Route{}, fmt.Errorf("unknown tier %q", tier)
	}

	for idx, candidate := range chain {
		model, found := r.pick(candidate, promptTokens, true)
		if !found {
			continue
		}
		return Route{Model: model, Tier: candidate, Degraded: idx > 0}, nil
	}
	for _, candidate := range chain {
		model, found := r.pick(candidate, promptTokens, false)
		if !found {
			continue
		}
		return Route{Model: model, Tier: candidate, Degraded: true}, nil
	}
	return Route{}, &NoModelError{Tier: tier, PromptTokens: promptTokens}
}

// pick returns the first context-fitting model of a tier, restricted to
// models with an available adapter when needAvailable is set.
func (r *Router) pick(tier string, promptTokens int, needAvailable bool) (provider.ModelDescriptor, bool) {
	for _, model := range r.tiers[tier] {
		if model.MaxContextTokens < promptTokens {
			continue
		}
		if needAvailable {
			adapter, ok := r.adapters.Get(model.Provider)
			if !ok || !adapter.Available() {
				continue
			}
		}
		return model, true
	}
	return provider.ModelDescriptor{}, false
}

// Models returns the configured model list for a tier.
func (r *Router) Models(tier string) []provider.ModelDescriptor {
	return r.tiers[tier]
}

// EstimateTokens approximates prompt size at four bytes per token, the
// usual rough cut for English text.
func EstimateTokens(prompt string) int {
	return len(prompt)/4 + 1
}

// OverridesFromRefs converts config-level "provider/model-id" lists into
// descriptor overrides. Refs known to the built-in table keep their context
// window and capabilities; unknown refs get a conservative default window.
// Priority follows list position.
func OverridesFromRefs(refs map[string][]string) (map[string][]provider.ModelDescriptor, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	known := make(map[string]provider.ModelDescriptor)
	for _, models := range defaultTiers() {
		for _, m := range models {
			known[m.Ref()] = m
		}
	}

	out := make(map[string][]provider.ModelDescriptor, len(refs))
	for tier, list := range refs {
		descriptors := make([]provider.ModelDescriptor, 0, len(list))
		for i, ref := range list {
			prov, modelID, ok := strings.Cut(ref, "/")
			if !ok || prov == "" || modelID == "" {
				return nil, fmt.Errorf("tier %s: malformed model ref %q, want provider/model-id", tier, ref)
			}
			d, found := known[ref]
			if !found {
				d = provider.ModelDescriptor{Provider: prov, ModelID: modelID, MaxContextTokens: 128000}
			}
			d.Priority = 100 - i*10
			descriptors = append(descriptors, d)
		}
		out[tier] = descriptors
	}
	return out, nil
}
