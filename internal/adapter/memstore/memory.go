package memstore

import (
	"fmt"

	"pubsearch/internal/domain"
)

// MetadataStore answers position and publication lookups for a loaded corpus.
// It is read-only after construction and safe for concurrent use.
type MetadataStore struct {
	chunks []domain.ChunkMetadata
	pubs   map[string]domain.PublicationRecord
}

// NewMetadataStore builds a store from position-ordered chunk metadata and the
// publication records the chunks refer to.
func NewMetadataStore(chunks []domain.ChunkMetadata, pubs []domain.PublicationRecord) (*MetadataStore, error) {
	s := &MetadataStore{
		chunks: chunks,
		pubs:   make(map[string]domain.PublicationRecord, len(pubs)),
	}

	for _, rec := range pubs {
		if _, dup := s.pubs[rec.ID]; dup {
			return nil, fmt.Errorf("duplicate publication id: %s", rec.ID)
		}
		s.pubs[rec.ID] = rec
	}

	return s, nil
}

// Lookup returns the metadata of the chunk at an index position.
func (s *MetadataStore) Lookup(pos int) (domain.ChunkMetadata, bool) {
	if pos < 0 || pos >= len(s.chunks) {
		return domain.ChunkMetadata{}, false
	}
	return s.chunks[pos], true
}

// Publication returns the full record for a publication id.
func (s *MetadataStore) Publication(id string) (domain.PublicationRecord, error) {
	rec, ok := s.pubs[id]
	if !ok {
		return domain.PublicationRecord{}, fmt.Errorf("%w: publication %s", domain.ErrNotFound, id)
	}
	return rec, nil
}

func (s *MetadataStore) ChunkCount() int {
	return len(s.chunks)
}

func (s *MetadataStore) PublicationCount() int {
	return len(s.pubs)
}
