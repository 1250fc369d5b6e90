package port

import (
	"context"

	"pubsearch/internal/domain"
)

// Retriever defines the interface for searching indexed content.
type Retriever interface {
	// Search returns the k nearest chunks to the query, most relevant first.
	Search(ctx context.Context, query string, k int) ([]domain.EnrichedResult, error)
}
