package port

import "pubsearch/internal/domain"

// Chunker splits one section of a publication into overlapping chunks.
type Chunker interface {
	Chunk(pubID, section, text string) ([]domain.Chunk, error)
}
