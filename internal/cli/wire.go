package cli

import (
	"context"
	"fmt"

	"pubsearch/config"
	"pubsearch/internal/adapter/cache"
	"pubsearch/internal/adapter/embedding"
	"pubsearch/internal/adapter/retriever"
	"pubsearch/internal/port"
	"pubsearch/internal/usecase"
)

// readSide bundles what the query commands need.
type readSide struct {
	embedder port.Embedder
	loader   *usecase.CorpusLoader
	service  *usecase.RetrieveUseCase
}

// openReadSide builds the embedder and loads the published index. It fails
// when the embedding backend does not answer, when no index has been published
// or when the published one does not load.
func openReadSide(ctx context.Context, cfg *config.Config) (*readSide, error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if err := embedding.Probe(ctx, embedder); err != nil {
		return nil, fmt.Errorf("embedding backend not ready: %w", err)
	}

	loader := usecase.NewCorpusLoader(cfg, logger)
	corpus, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index from %s: %w", cfg.DataDir, err)
	}

	var qc *cache.QueryCache
	if cfg.Retrieve.CacheSize > 0 {
		qc = cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
	}

	r, err := retriever.NewSemanticRetriever(embedder, corpus, retriever.Options{
		MinK:         cfg.Retrieve.MinK,
		MaxK:         cfg.Retrieve.MaxK,
		QueryTimeout: cfg.Retrieve.QueryTimeout,
		Cache:        qc,
	})
	if err != nil {
		return nil, err
	}

	return &readSide{
		embedder: embedder,
		loader:   loader,
		service:  usecase.NewRetrieveUseCase(r, cfg, logger),
	}, nil
}
