package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gwi.com/onboarding-backend/internal/config"
	"gwi.com/onboarding-backend/internal/platform/logger"
)

// Prompt is one generation request.
type Prompt struct {
	System      string
	User        string
	JSON        bool // ask the backend for a JSON object response
	Temperature float32
	MaxTokens   int
}

// Provider turns a prompt into generated text. Every failure, including timeouts and
// unusable output, is reported as *ProviderError.
type Provider interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	Name() string
}

type ProviderError struct {
	Provider  string
	Reason    string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// asProviderError wraps err unless it already is a *ProviderError.
func asProviderError(provider, reason string, err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	return &ProviderError{Provider: provider, Reason: reason, Retryable: retryable, Err: err}
}

// Unavailable is used when no backend is configured; it always fails.
type Unavailable struct{}

func (Unavailable) Name() string { return "none" }

func (Unavailable) Generate(context.Context, Prompt) (string, error) {
	return "", &ProviderError{Provider: "none", Reason: "no generation provider configured"}
}

// New builds the provider selected by cfg, wrapped with retry and a per-call timeout.
// The returned close function releases client resources.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (Provider, func(), error) {
	var (
		base    Provider
		closeFn = func() {}
	)
	switch cfg.LLMProvider {
	case config.ProviderGrok:
		if cfg.XAIAPIKey == "" {
			base = Unavailable{}
			break
		}
		base = NewGrokProvider(cfg.XAIBaseURL, cfg.XAIAPIKey, cfg.XAIModel, nil)
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			base = Unavailable{}
			break
		}
		gp, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			return nil, nil, err
		}
		base, closeFn = gp, gp.Close
	case config.ProviderNone:
		base = Unavailable{}
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	if _, ok := base.(Unavailable); ok {
		return base, closeFn, nil
	}
	p := WithRetry(base, cfg.LLMMaxAttempts, 500*time.Millisecond)
	return WithTimeout(p, cfg.LLMTimeout), closeFn, nil
}
