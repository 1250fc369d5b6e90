package embedding

import (
	"fmt"

	"pubsearch/config"
	"pubsearch/internal/port"
)

// New creates the configured embedder wrapped in a Guard.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	opts := Options{
		Dimension:         cfg.Dimension,
		BatchSize:         cfg.BatchSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout,
	}

	var embedder port.Embedder
	var err error

	switch cfg.Provider {
	case "openai":
		embedder, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, opts)
	case "deepseek":
		embedder, err = NewDeepSeekEmbedder(cfg.APIKeyEnv, cfg.Model, opts)
	case "jina":
		embedder, err = NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, opts)
	case "ollama":
		embedder, err = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, opts)
	case "compatible":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedding provider %q requires base_url", cfg.Provider)
		}
		embedder, err = NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, opts)
	case "hash":
		embedder = NewHashEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return NewGuard(embedder, cfg.MaxConcurrent, cfg.Timeout), nil
}
