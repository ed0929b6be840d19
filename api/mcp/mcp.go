// Package mcp provides an MCP (Model Context Protocol) server for recall.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/pkg/utils"
)

type Config struct {
	// Engine answers every tool call
	Engine search.Engine

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "recall",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Engine == nil {
			return nil, errors.New("engine is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        loadToolName,
			Description: loadDescription,
		}, s.handleLoad)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        triggersToolName,
			Description: triggersDescription,
		}, s.handleMatchTriggers)
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        saveToolName,
			Description: saveDescription,
		}, s.handleSave)
	}

	s.mcpServer = mcpServer

	// Stateless streamable HTTP: every request is served by the same server
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// jsonResult serializes structured output into a TextContent block as well,
// for clients that only read text.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}
