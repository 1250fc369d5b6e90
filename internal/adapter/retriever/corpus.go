package retriever

import (
	"fmt"

	"pubsearch/internal/adapter/memstore"
	"pubsearch/internal/adapter/vectorindex"
	"pubsearch/internal/domain"
	"pubsearch/internal/port"
)

// Corpus is one immutable, fully validated index build: the vector index and
// the metadata store built from the same entry slice, plus the build info.
type Corpus struct {
	Info  domain.IndexInfo
	Index *vectorindex.Flat
	Meta  *memstore.MetadataStore
}

// NewCorpus builds the index and metadata store from entries and checks them
// against info and the publication records. Any disagreement is reported as
// domain.ErrIndexCorruption.
func NewCorpus(info domain.IndexInfo, entries []domain.Entry, pubs []domain.PublicationRecord) (*Corpus, error) {
	if len(entries) != info.ChunkCount {
		return nil, fmt.Errorf("%w: index holds %d vectors, info declares %d", domain.ErrIndexCorruption, len(entries), info.ChunkCount)
	}
	if len(pubs) != info.PublicationCount {
		return nil, fmt.Errorf("%w: found %d publication records, info declares %d", domain.ErrIndexCorruption, len(pubs), info.PublicationCount)
	}

	known := make(map[string]struct{}, len(pubs))
	for _, p := range pubs {
		known[p.ID] = struct{}{}
	}

	vectors := make([][]float32, len(entries))
	metas := make([]domain.ChunkMetadata, len(entries))
	for i, e := range entries {
		if len(e.Vector) != info.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, info declares %d", domain.ErrIndexCorruption, i, len(e.Vector), info.Dimension)
		}
		if _, ok := known[e.Meta.PubID]; !ok {
			return nil, fmt.Errorf("%w: chunk %s references unknown publication %s", domain.ErrIndexCorruption, e.Meta.ChunkID, e.Meta.PubID)
		}
		vectors[i] = e.Vector
		metas[i] = e.Meta
	}

	index, err := vectorindex.Build(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}
	meta, err := memstore.NewMetadataStore(metas, pubs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	return &Corpus{Info: info, Index: index, Meta: meta}, nil
}

// CheckEmbedder reports domain.ErrIndexCorruption when the runtime embedder is
// not the model the corpus was built with.
func (c *Corpus) CheckEmbedder(e port.Embedder) error {
	if e.ModelName() != c.Info.Model {
		return fmt.Errorf("%w: index built with model %q, embedder is %q", domain.ErrIndexCorruption, c.Info.Model, e.ModelName())
	}
	if e.Dimension() != c.Info.Dimension {
		return fmt.Errorf("%w: index dimension %d, embedder dimension %d", domain.ErrIndexCorruption, c.Info.Dimension, e.Dimension())
	}
	return nil
}

// Health summarizes the corpus for readiness reporting.
func (c *Corpus) Health() domain.Health {
	return domain.Health{
		Status:       "ok",
		Chunks:       c.Meta.ChunkCount(),
		Publications: c.Meta.PublicationCount(),
		Model:        c.Info.Model,
		Dimension:    c.Info.Dimension,
		BuildID:      c.Info.BuildID,
	}
}
