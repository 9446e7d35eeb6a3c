package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const anthropicVersion = "2023-06-01"

type anthropicAdapter struct {
	baseURL string
	apiKey  string
	offline bool
	client  *http.Client
}

// NewAnthropic builds the Anthropic messages-API adapter, keyed by
// ANTHROPIC_API_KEY.
func NewAnthropic(opts Options) Adapter {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &anthropicAdapter{
		baseURL: base,
		apiKey:  opts.key("ANTHROPIC_API_KEY"),
		offline: opts.Offline,
		client:  newHTTPClient(opts.Timeout),
	}
}

func (a *anthropicAdapter) Name() string { return "anthropic" }

func (a *anthropicAdapter) Available() bool {
	return !a.offline && a.apiKey != ""
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (a *anthropicAdapter) Chat(ctx context.Context, descriptor ModelDescriptor, prompt string, params Params) (*ChatResponse, error) {
	if a.offline {
		return nil, &ProviderUnavailableError{Provider: "anthropic", Reason: "offline mode"}
	}
	if a.apiKey == "" {
		return nil, &ProviderUnavailableError{Provider: "anthropic", Reason: "no API key"}
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     descriptor.ModelID,
		MaxTokens: maxTokens,
		System:    params.System,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, &BadRequestError{Provider: "anthropic", Message: err.Error()}
	}

	return withRetry(ctx, "anthropic", func() (*ChatResponse, error) {
		return a.once(ctx, body)
	})
}

func (a *anthropicAdapter) once(ctx context.Context, body []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &BadRequestError{Provider: "anthropic", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: "anthropic", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Provider: "anthropic", Err: err}
	}
	if err := classifyStatus("anthropic", resp, data); err != nil {
		return nil, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &NetworkError{Provider: "anthropic", Err: fmt.Errorf("malformed response: %w", err)}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &ChatResponse{
		Text:        text,
		TokensIn:    parsed.Usage.InputTokens,
		TokensOut:   parsed.Usage.OutputTokens,
		StopReason:  parsed.StopReason,
		RawMetadata: map[string]any{"model": parsed.Model},
	}, nil
}
