package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/retry"
)

// Engine is the recall engine surface served over HTTP.
type Engine interface {
	search.Engine
	Get(ctx context.Context, id int64) (*memory.Record, error)
	Delete(ctx context.Context, id int64) error
	RetryFailed(ctx context.Context) (retry.Result, error)
	Stats(ctx context.Context) (*engine.Stats, error)
}

// Server is the API server for the recall engine
type Server struct {
	config Config
	engine Engine
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The engine is injected so it can be
// shared with the file watcher and the retry loop. mcpHandler is mounted at
// /mcp when non-nil.
func NewServer(config Config, eng Engine, mcpHandler http.Handler, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: eng,
		logger: logger.OrNop(log),
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/memories", s.handleSave)
	app.Get("/memories/:id", s.handleGetMemory)
	app.Delete("/memories/:id", s.handleDeleteMemory)
	app.Post("/search", s.handleSearch)
	app.Post("/load", s.handleLoad)
	app.Post("/triggers/match", s.handleMatchTriggers)
	app.Post("/retry", s.handleRetry)
	app.Get("/stats", s.handleStats)

	if mcpHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
