package port

import (
	"context"

	"pubsearch/internal/domain"
)

// SearchService is the read API exposed over HTTP, MCP and the CLI.
type SearchService interface {
	// Search runs a query; k = 0 selects the configured default.
	Search(ctx context.Context, query string, k int) ([]domain.EnrichedResult, error)

	Publication(ctx context.Context, pubID string) (domain.PublicationRecord, error)

	Summarize(ctx context.Context, pubID string) (domain.Summary, error)

	Health(ctx context.Context) (domain.Health, error)
}
