package mcp

import (
	"context"
	"fmt"
	"log/slog"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"pubsearch/internal/port"
)

// Server exposes the search service as MCP tools for agent clients.
type Server struct {
	mcp    *gomcp.Server
	svc    port.SearchService
	logger *slog.Logger
}

// NewServer creates an MCP server with the publication search tools.
func NewServer(svc port.SearchService, version string, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("search service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: gomcp.NewServer(
			&gomcp.Implementation{
				Name:    "pubsearch",
				Version: version,
			},
			nil,
		),
		svc:    svc,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &gomcp.StdioTransport{})
}
