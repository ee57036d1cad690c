package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGrokBaseURL = "https://api.x.ai/v1"
	defaultGrokModel   = "grok-3"
)

// GrokProvider talks to xAI's OpenAI-compatible chat completions endpoint.
type GrokProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGrokProvider(baseURL, apiKey, model string, httpClient *http.Client) *GrokProvider {
	if baseURL == "" {
		baseURL = defaultGrokBaseURL
	}
	if model == "" {
		model = defaultGrokModel
	}
	if httpClient == nil {
		// Upper bound only; per-call deadlines come from the request context.
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &GrokProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (g *GrokProvider) Name() string { return "grok" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GrokProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	req := chatRequest{
		Model:       g.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	if p.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: p.User})
	if p.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &ProviderError{Provider: g.Name(), Reason: "failed to encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: g.Name(), Reason: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", asProviderError(g.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", asProviderError(g.Name(), "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{
			Provider:  g.Name(),
			Reason:    fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 300)),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ProviderError{Provider: g.Name(), Reason: "unexpected response format", Err: err}
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", &ProviderError{Provider: g.Name(), Reason: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", &ProviderError{Provider: g.Name(), Reason: "empty completion"}
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
