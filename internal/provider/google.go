package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type googleAdapter struct {
	baseURL string
	apiKey  string
	offline bool
	client  *http.Client
}

// NewGoogle builds the Gemini generateContent adapter, keyed by
// GEMINI_API_KEY.
func NewGoogle(opts Options) Adapter {
	base := opts.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	return &googleAdapter{
		baseURL: base,
		apiKey:  opts.key("GEMINI_API_KEY"),
		offline: opts.Offline,
		client:  newHTTPClient(opts.Timeout),
	}
}

func (a *googleAdapter) Name() string { return "google" }

func (a *googleAdapter) Available() bool {
	return !a.offline && a.apiKey != ""
}

type googleRequest struct {
	Contents          []googleContent `json:"contents"`
	SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenCfg   `json:"generationConfig,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenCfg struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (a *googleAdapter) Chat(ctx context.Context, descriptor ModelDescriptor, prompt string, params Params) (*ChatResponse, error) {
	if a.offline {
		return nil, &ProviderUnavailableError{Provider: "google", Reason: "offline mode"}
	}
	if a.apiKey == "" {
		return nil, &ProviderUnavailableError{Provider: "google", Reason: "no API key"}
	}

	reqBody := googleRequest{
		Contents: []googleContent{{Role: "user", Parts: []googlePart{{Text: prompt}}}},
	}
	if params.System != "" {
		reqBody.SystemInstruction = &googleContent{Parts: []googlePart{{Text: params.System}}}
	}
	if params.MaxTokens > 0 || params.Temperature > 0 {
		reqBody.GenerationConfig = &googleGenCfg{MaxOutputTokens: params.MaxTokens, Temperature: params.Temperature}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &BadRequestError{Provider: "google", Message: err.Error()}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.baseURL, descriptor.ModelID)
	return withRetry(ctx, "google", func() (*ChatResponse, error) {
		return a.once(ctx, url, body)
	})
}

func (a *googleAdapter) once(ctx context.Context, url string, body []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &BadRequestError{Provider: "google", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: "google", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Provider: "google", Err: err}
	}
	if err := classifyStatus("google", resp, data); err != nil {
		return nil, err
	}

	var parsed googleResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &NetworkError{Provider: "google", Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(parsed.Candidates) == 0 {
		return nil, &NetworkError{Provider: "google", Err: fmt.Errorf("empty candidates")}
	}

	var text string
	for _, part := range parsed.Candidates[0].Content.Parts {
		text += part.Text
	}

	return &ChatResponse{
		Text:        text,
		TokensIn:    parsed.UsageMetadata.PromptTokenCount,
		TokensOut:   parsed.UsageMetadata.CandidatesTokenCount,
		StopReason:  parsed.Candidates[0].FinishReason,
		RawMetadata: map[string]any{"model": parsed.ModelVersion},
	}, nil
}
