package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gwi.com/onboarding-backend/internal/platform/logger"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

type GeminiProvider struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, log *logger.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		client: client,
		model:  model,
		log:    log.With("service", "GeminiProvider"),
	}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			g.log.Warn("error closing GenAI client", "error", err)
		} else {
			g.log.Info("GenAI client closed")
		}
	}
}

func (g *GeminiProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	model := g.client.GenerativeModel(g.model)

	if p.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.System)},
		}
	}

	temp := p.Temperature
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}
	if p.MaxTokens > 0 {
		maxTokens := int32(p.MaxTokens)
		model.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if p.JSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", asProviderError(g.Name(), "GenerateContent failed", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Provider: g.Name(), Reason: "response was empty or had no candidates"}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			g.log.Debug("skipping non-text response part", "type", fmt.Sprintf("%T", part))
		}
	}

	if strings.TrimSpace(responseText.String()) == "" {
		return "", &ProviderError{Provider: g.Name(), Reason: "response contained no text"}
	}
	return responseText.String(), nil
}
