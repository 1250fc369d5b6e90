package retriever

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pubsearch/internal/adapter/cache"
	"pubsearch/internal/domain"
	"pubsearch/internal/port"
)

// Options bound and tune a SemanticRetriever.
type Options struct {
	MinK         int
	MaxK         int
	QueryTimeout time.Duration
	// Cache is optional. It is invalidated whenever the corpus is swapped.
	Cache *cache.QueryCache
}

// SemanticRetriever answers queries by embedding them and running an exact
// nearest-neighbor search over the current corpus. The corpus can be replaced
// while queries are in flight; each query sees exactly one corpus.
type SemanticRetriever struct {
	embedder port.Embedder
	corpus   atomic.Pointer[Corpus]
	cache    *cache.QueryCache
	minK     int
	maxK     int
	timeout  time.Duration
}

var _ port.Retriever = (*SemanticRetriever)(nil)

func NewSemanticRetriever(embedder port.Embedder, corpus *Corpus, opts Options) (*SemanticRetriever, error) {
	if opts.MinK < 1 {
		opts.MinK = 1
	}
	if opts.MaxK < opts.MinK {
		opts.MaxK = 50
	}

	r := &SemanticRetriever{
		embedder: embedder,
		cache:    opts.Cache,
		minK:     opts.MinK,
		maxK:     opts.MaxK,
		timeout:  opts.QueryTimeout,
	}
	if corpus != nil {
		if err := r.Swap(corpus); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Corpus returns the corpus currently being served, or nil.
func (r *SemanticRetriever) Corpus() *Corpus {
	return r.corpus.Load()
}

// Swap replaces the served corpus after checking it was built with the
// retriever's embedder. On error the previous corpus keeps serving.
func (r *SemanticRetriever) Swap(c *Corpus) error {
	if err := c.CheckEmbedder(r.embedder); err != nil {
		return err
	}
	r.corpus.Store(c)
	if r.cache != nil {
		r.cache.Invalidate()
	}
	return nil
}

// Search returns the k chunks nearest to query in ascending distance order.
func (r *SemanticRetriever) Search(ctx context.Context, query string, k int) ([]domain.EnrichedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if k < r.minK || k > r.maxK {
		return nil, fmt.Errorf("%w: k must be between %d and %d, got %d", domain.ErrInvalidQuery, r.minK, r.maxK, k)
	}

	c := r.corpus.Load()
	if c == nil {
		return nil, domain.ErrNoIndex
	}

	// The build id scopes cache entries so a result computed against a corpus
	// that was swapped out mid-query is never served for the new one.
	cacheQuery := c.Info.BuildID + "\x00" + query
	if r.cache != nil {
		if results, ok := r.cache.Get(cacheQuery, k); ok {
			return results, nil
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", domain.ErrModelUnavailable, len(vecs))
	}

	hits, err := c.Index.Search(vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	results, err := enrich(c, hits)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Put(cacheQuery, k, results)
	}
	return results, nil
}

// enrich joins index hits with chunk and publication metadata. A hit that
// cannot be joined means the index and metadata disagree; it is never skipped.
func enrich(c *Corpus, hits []domain.Neighbor) ([]domain.EnrichedResult, error) {
	results := make([]domain.EnrichedResult, 0, len(hits))
	for _, h := range hits {
		meta, ok := c.Meta.Lookup(h.Position)
		if !ok {
			return nil, fmt.Errorf("%w: no metadata at position %d", domain.ErrIndexCorruption, h.Position)
		}
		pub, err := c.Meta.Publication(meta.PubID)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", domain.ErrIndexCorruption, meta.ChunkID, err)
		}
		results = append(results, domain.EnrichedResult{
			Score:      h.Distance,
			PubID:      meta.PubID,
			Section:    meta.Section,
			Excerpt:    meta.Excerpt,
			PubTitle:   pub.Title,
			PubYear:    string(pub.Year),
			PubAuthors: pub.Authors,
			ChunkID:    meta.ChunkID,
			Position:   h.Position,
		})
	}
	return results, nil
}
