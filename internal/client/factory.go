package client

import (
	"context"
	"fmt"
	"strings"

	"comfypilot/internal/config"
	"comfypilot/internal/logging"
	"comfypilot/internal/ratelimit"
)

// NewProvider creates a provider from the configuration. The request
// limiter is shared by every request of the returned provider.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           cfg.API.RequestsPerMinute > 0,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
		BurstSize:         cfg.API.Burst,
	})

	provider := strings.ToLower(cfg.API.Provider)
	if provider == "" {
		provider = detectProvider(cfg.Model.Name)
	}

	logging.Debug("creating provider",
		"provider", provider,
		"model", cfg.Model.Name)

	switch provider {
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:          cfg.API.APIKey,
			Model:           cfg.Model.Name,
			Temperature:     cfg.Model.Temperature,
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
		}, limiter)
	case "ollama":
		model := cfg.Model.Name
		if model == "" || strings.HasPrefix(model, "gemini") {
			model = config.DefaultOllamaModel
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.API.OllamaBaseURL,
			APIKey:      cfg.API.OllamaAPIKey,
			Model:       model,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxOutputTokens,
			HTTPTimeout: cfg.Loop.ModelTimeout,
		}, limiter)
	default:
		return nil, fmt.Errorf("unknown provider %q (expected gemini or ollama)", cfg.API.Provider)
	}
}

// detectProvider guesses the provider from a model name.
func detectProvider(model string) string {
	if model == "" || strings.HasPrefix(strings.ToLower(model), "gemini") {
		return "gemini"
	}
	return "ollama"
}
