package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/api/search"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search saved memories by meaning. Pass a query, or 2 to 5 concepts that must all match. When the embedding model is unavailable results are approximated from trigger phrases and flagged degraded."
)

// handleSearch processes a memory_search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input search.SearchInput) (*mcp.CallToolResult, search.SearchOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP search request",
		"query", input.Query,
		"concepts", len(input.Concepts),
		"limit", input.Limit,
	)

	output, err := search.Search(ctx, s.config.Engine, input)
	if err != nil {
		logger.Warn("search failed", "error", err)
		return errorResult("Search failed: %v", err), search.SearchOutput{}, nil
	}
	if output.Degraded {
		logger.Debug("search degraded", "reason", output.Reason)
	}

	return jsonResult(output), *output, nil
}
