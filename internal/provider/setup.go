package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/aether/internal/config"
)

// FromConfig builds the registry from the providers whose credentials are
// present in cfg. Loading the configuration already guarantees the default
// provider's credential. A configured Ollama server that does not answer
// is still registered, since it may come up after aether does.
func FromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "provider")
	p := cfg.Providers

	defaultID, ok := ParseID(p.Default)
	if !ok {
		return nil, fmt.Errorf("unknown default provider %q", p.Default)
	}

	var adapters []Adapter
	if p.GroqAPIKey != "" {
		adapters = append(adapters, NewGroq(p.GroqAPIKey, ""))
	}
	if p.OpenAIAPIKey != "" {
		adapters = append(adapters, NewOpenAI(p.OpenAIAPIKey, ""))
	}
	if p.AnthropicAPIKey != "" {
		adapters = append(adapters, NewAnthropic(p.AnthropicAPIKey, ""))
	}
	if p.OpenRouterAPIKey != "" {
		adapters = append(adapters, NewOpenRouter(p.OpenRouterAPIKey, ""))
	}
	if p.OllamaBaseURL != "" {
		ollama := NewOllama(p.OllamaBaseURL)
		if !ollama.IsRunning(ctx) {
			logger.Warn("ollama is not reachable, its calls will fail until it starts", "url", p.OllamaBaseURL)
		}
		adapters = append(adapters, ollama)
	}

	reg, err := NewRegistry(defaultID, adapters...)
	if err != nil {
		return nil, err
	}
	logger.Info("providers configured", "available", reg.Available(), "default", reg.Default())
	return reg, nil
}
