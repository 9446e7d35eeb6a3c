package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// openAICompatible serves any provider speaking the OpenAI chat completions
// wire format. The xAI adapter reuses it with a different endpoint and key.
type openAICompatible struct {
	name    string
	baseURL string
	apiKey  string
	offline bool
	client  *http.Client
}

// NewOpenAI builds the OpenAI adapter. The key comes from OPENAI_API_KEY
// unless overridden.
func NewOpenAI(opts Options) Adapter {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	return &openAICompatible{
		name:    "openai",
		baseURL: base,
		apiKey:  opts.key("OPENAI_API_KEY"),
		offline: opts.Offline,
		client:  newHTTPClient(opts.Timeout),
	}
}

// NewXAI builds the xAI adapter on the OpenAI-compatible surface, keyed by
// XAI_API_KEY.
func NewXAI(opts Options) Adapter {
	base := opts.BaseURL
	if base == "" {
		base = "https://api.x.ai"
	}
	return &openAICompatible{
		name:    "xai",
		baseURL: base,
		apiKey:  opts.key("XAI_API_KEY"),
		offline: opts.Offline,
		client:  newHTTPClient(opts.Timeout),
	}
}

func (a *openAICompatible) Name() string { return a.name }

func (a *openAICompatible) Available() bool {
	return !a.offline && a.apiKey != ""
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (a *openAICompatible) Chat(ctx context.Context, descriptor ModelDescriptor, prompt string, params Params) (*ChatResponse, error) {
	if a.offline {
		return nil, &ProviderUnavailableError{Provider: a.name, Reason: "offline mode"}
	}
	if a.apiKey == "" {
		return nil, &ProviderUnavailableError{Provider: a.name, Reason: "no API key"}
	}

	var messages []openAIMessage
	if params.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: params.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(openAIRequest{
		Model:       descriptor.ModelID,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return nil, &BadRequestError{Provider: a.name, Message: err.Error()}
	}

	return withRetry(ctx, a.name, func() (*ChatResponse, error) {
		return a.once(ctx, body)
	})
}

func (a *openAICompatible) once(ctx context.Context, body []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &BadRequestError{Provider: a.name, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: a.name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Provider: a.name, Err: err}
	}
	if err := classifyStatus(a.name, resp, data); err != nil {
		return nil, err
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &NetworkError{Provider: a.name, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &NetworkError{Provider: a.name, Err: fmt.Errorf("empty choices")}
	}

	return &ChatResponse{
		Text:        parsed.Choices[0].Message.Content,
		TokensIn:    parsed.Usage.PromptTokens,
		TokensOut:   parsed.Usage.CompletionTokens,
		StopReason:  parsed.Choices[0].FinishReason,
		RawMetadata: map[string]any{"model": parsed.Model},
	}, nil
}

// classifyStatus maps a non-2xx response to the error taxonomy. 2xx returns
// nil.
func classifyStatus(provider string, resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: provider, Message: trimBody(body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return &NetworkError{Provider: provider, Err: fmt.Errorf("server error %d: %s", resp.StatusCode, trimBody(body))}
	default:
		return &BadRequestError{Provider: provider, Status: resp.StatusCode, Message: trimBody(body)}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func trimBody(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
