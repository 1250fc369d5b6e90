package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"pubsearch/internal/domain"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(&gomcp.Tool{
		Name:        "search_publications",
		Description: "Semantic search over indexed publication text. Returns the nearest chunks with publication title, year, authors and an excerpt. Lower score means closer.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Natural language search query"},
				"k": {"type": "number", "description": "Number of results, 1 to 50 (default 5)"}
			},
			"required": ["query"]
		}`),
	}, s.handleSearch)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "get_publication",
		Description: "Return the full stored record of a publication, including all section text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pub_id": {"type": "string", "description": "Publication id, e.g. PMC1234567"}
			},
			"required": ["pub_id"]
		}`),
	}, s.handleGetPublication)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "summarize_publication",
		Description: "Return a short templated summary of a publication: title, authors, year, abstract and key findings.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pub_id": {"type": "string", "description": "Publication id, e.g. PMC1234567"}
			},
			"required": ["pub_id"]
		}`),
	}, s.handleSummarize)

	s.mcp.AddTool(&gomcp.Tool{
		Name:        "index_health",
		Description: "Report the size of the served index: chunk and publication counts, model and build id.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, s.handleHealth)
}

type searchArgs struct {
	Query string  `json:"query"`
	K     float64 `json:"k"`
}

type pubArgs struct {
	PubID string `json:"pub_id"`
}

func (s *Server) handleSearch(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args searchArgs
	if err := decodeArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.K != float64(int(args.K)) {
		return toolError("k must be a whole number, got %v", args.K), nil
	}

	results, err := s.svc.Search(ctx, args.Query, int(args.K))
	if err != nil {
		return s.serviceError(ctx, "search_publications", err), nil
	}
	if results == nil {
		results = []domain.EnrichedResult{}
	}
	return toolJSON(results)
}

func (s *Server) handleGetPublication(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args pubArgs
	if err := decodeArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.PubID == "" {
		return toolError("pub_id is required"), nil
	}

	rec, err := s.svc.Publication(ctx, args.PubID)
	if err != nil {
		return s.serviceError(ctx, "get_publication", err), nil
	}
	return toolJSON(rec)
}

func (s *Server) handleSummarize(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args pubArgs
	if err := decodeArgs(req, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.PubID == "" {
		return toolError("pub_id is required"), nil
	}

	sum, err := s.svc.Summarize(ctx, args.PubID)
	if err != nil {
		return s.serviceError(ctx, "summarize_publication", err), nil
	}
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: sum.Summary}},
	}, nil
}

func (s *Server) handleHealth(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	h, err := s.svc.Health(ctx)
	if err != nil {
		return s.serviceError(ctx, "index_health", err), nil
	}
	return toolJSON(h)
}

func decodeArgs(req *gomcp.CallToolRequest, v any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, v)
}

// serviceError turns a service failure into a tool error. Caller mistakes are
// reported plainly; server-side failures are also logged.
func (s *Server) serviceError(ctx context.Context, tool string, err error) *gomcp.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrNotFound):
	default:
		s.logger.ErrorContext(ctx, "tool failed", "tool", tool, "error", err)
	}
	return toolError("%s: %v", tool, err)
}

func toolJSON(v any) (*gomcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(format string, args ...interface{}) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}
