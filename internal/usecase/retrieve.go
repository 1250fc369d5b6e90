package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pubsearch/config"
	"pubsearch/internal/adapter/retriever"
	"pubsearch/internal/domain"
	"pubsearch/internal/logging"
)

// RetrieveUseCase is the read side of the service: search, publication lookup,
// summaries and health, all answered from the retriever's current corpus.
type RetrieveUseCase struct {
	retriever *retriever.SemanticRetriever
	cfg       *config.Config
	logger    *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(r *retriever.SemanticRetriever, cfg *config.Config, logger *slog.Logger) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{retriever: r, cfg: cfg, logger: logger}
}

// Search runs a query. k = 0 selects the configured default.
func (u *RetrieveUseCase) Search(ctx context.Context, query string, k int) ([]domain.EnrichedResult, error) {
	if k == 0 {
		k = u.cfg.Retrieve.DefaultK
	}

	if c := u.retriever.Corpus(); c != nil {
		ctx = logging.WithBuildID(ctx, c.Info.BuildID)
	}

	start := time.Now()
	results, err := u.retriever.Search(ctx, query, k)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidQuery) {
			u.logger.ErrorContext(ctx, "search failed", "k", k, "error", err)
		}
		return nil, err
	}

	u.logger.DebugContext(ctx, "search", "query_len", len(query), "k", k, "hits", len(results), "elapsed", time.Since(start))
	return results, nil
}

// Publication returns the full record of a publication.
func (u *RetrieveUseCase) Publication(ctx context.Context, pubID string) (domain.PublicationRecord, error) {
	c, err := u.corpus()
	if err != nil {
		return domain.PublicationRecord{}, err
	}
	if strings.TrimSpace(pubID) == "" {
		return domain.PublicationRecord{}, fmt.Errorf("%w: empty publication id", domain.ErrNotFound)
	}
	return c.Meta.Publication(pubID)
}

// Summarize returns the templated summary of a publication.
func (u *RetrieveUseCase) Summarize(ctx context.Context, pubID string) (domain.Summary, error) {
	rec, err := u.Publication(ctx, pubID)
	if err != nil {
		return domain.Summary{}, err
	}
	return Summarize(rec, u.cfg.Summary), nil
}

// Health reports the size of the served corpus.
func (u *RetrieveUseCase) Health(ctx context.Context) (domain.Health, error) {
	c, err := u.corpus()
	if err != nil {
		return domain.Health{Status: "unavailable"}, err
	}
	return c.Health(), nil
}

// Reload loads the build named by CURRENT and swaps it in. On failure the
// current corpus keeps serving.
func (u *RetrieveUseCase) Reload(ctx context.Context, loader *CorpusLoader) error {
	next, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	if cur := u.retriever.Corpus(); cur != nil && cur.Info.BuildID == next.Info.BuildID {
		return nil
	}
	if err := u.retriever.Swap(next); err != nil {
		return err
	}
	u.logger.InfoContext(ctx, "index swapped", "build_id", next.Info.BuildID, "chunks", next.Info.ChunkCount)
	return nil
}

func (u *RetrieveUseCase) corpus() (*retriever.Corpus, error) {
	c := u.retriever.Corpus()
	if c == nil {
		return nil, domain.ErrNoIndex
	}
	return c, nil
}
