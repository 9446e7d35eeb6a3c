// Package provider implements the model provider adapters. Each adapter
// translates the engine's uniform chat request into one provider's wire
// format, classifies non-2xx responses into typed errors, and retries
// transient failures with exponential backoff.
package provider

import (
	"context"
	"net/http"
	"os"
	"time"
)

// Capability flags a model may advertise.
type Capability string

// Model capabilities.
const (
	CapThinking    Capability = "thinking"
	CapVision      Capability = "vision"
	CapFast        Capability = "fast"
	CapLongContext Capability = "long_context"
)

// ModelDescriptor identifies one routable model.
type ModelDescriptor struct {
	Provider         string       `json:"provider" yaml:"provider"`
	ModelID          string       `json:"model_id" yaml:"model_id"`
	MaxContextTokens int          `json:"max_context_tokens" yaml:"max_context_tokens"`
	Capabilities     []Capability `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Priority         int          `json:"priority" yaml:"priority"`
	CostHint         float64      `json:"cost_hint,omitempty" yaml:"cost_hint,omitempty"`
}

// Ref returns "provider/model_id", the form logs and telemetry use.
func (d ModelDescriptor) Ref() string {
	return d.Provider + "/" + d.ModelID
}

// Has reports whether the descriptor advertises a capability.
func (d ModelDescriptor) Has(cap Capability) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Params carry per-call generation settings.
type Params struct {
	MaxTokens   int
	Temperature float64
	System      string
}

// ChatResponse is the uniform result shape across providers.
type ChatResponse struct {
	Text        string         `json:"text"`
	TokensIn    int            `json:"tokens_in"`
	TokensOut   int            `json:"tokens_out"`
	StopReason  string         `json:"stop_reason"`
	RawMetadata map[string]any `json:"raw_metadata,omitempty"`
}

// Adapter is the provider contract. Implementations are safe for
// concurrent use.
type Adapter interface {
	// Name is the provider identifier ("openai", "anthropic", ...).
	Name() string
	// Available reports whether the adapter can serve requests (API key
	// present, not in offline mode).
	Available() bool
	// Chat sends one prompt and returns the classified result.
	Chat(ctx context.Context, descriptor ModelDescriptor, prompt string, params Params) (*ChatResponse, error)
}

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 60 * time.Second

// newHTTPClient builds the shared transport with a bounded connection pool.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Options configure adapter construction. Zero values take defaults.
type Options struct {
	// BaseURL overrides the provider endpoint, used by tests.
	BaseURL string
	// APIKey overrides the environment lookup.
	APIKey string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// Offline forces every Chat to fail with ProviderUnavailableError.
	Offline bool
}

func (o Options) key(envVar string) string {
	if o.APIKey != "" {
		return o.APIKey
	}
	return os.Getenv(envVar)
}

// Registry maps provider names to adapters.
type Registry map[string]Adapter

// DefaultRegistry constructs the four built-in adapters.
func DefaultRegistry(opts Options) Registry {
	return Registry{
		"openai":    NewOpenAI(opts),
		"anthropic": NewAnthropic(opts),
		"google":    NewGoogle(opts),
		"xai":       NewXAI(opts),
	}
}

// Get returns the adapter for a provider name.
func (r Registry) Get(name string) (Adapter, bool) {
	a, ok := r[name]
	return a, ok
}
