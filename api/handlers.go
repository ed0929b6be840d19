package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/pkg/memory"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSave handles POST /memories.
func (s *Server) handleSave(c *fiber.Ctx) error {
	var in search.SaveInput
	if err := c.BodyParser(&in); err != nil {
		return s.badRequest(c, "invalid request body")
	}

	rec, err := search.Save(c.Context(), s.engine, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// handleGetMemory handles GET /memories/:id.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id, err := memoryID(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}

	rec, err := s.engine.Get(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rec)
}

// handleDeleteMemory handles DELETE /memories/:id.
func (s *Server) handleDeleteMemory(c *fiber.Ctx) error {
	id, err := memoryID(c)
	if err != nil {
		return s.badRequest(c, err.Error())
	}

	if err := s.engine.Delete(c.Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleSearch handles POST /search. Degraded answers are still 200; the
// body carries the degraded flag and reason.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	var in search.SearchInput
	if err := c.BodyParser(&in); err != nil {
		return s.badRequest(c, "invalid request body")
	}

	output, err := search.Search(c.Context(), s.engine, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(output)
}

// handleLoad handles POST /load.
func (s *Server) handleLoad(c *fiber.Ctx) error {
	var in search.LoadInput
	if err := c.BodyParser(&in); err != nil {
		return s.badRequest(c, "invalid request body")
	}

	result, err := search.Load(c.Context(), s.engine, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

// handleMatchTriggers handles POST /triggers/match.
func (s *Server) handleMatchTriggers(c *fiber.Ctx) error {
	var in search.TriggersInput
	if err := c.BodyParser(&in); err != nil {
		return s.badRequest(c, "invalid request body")
	}

	output, err := search.MatchTriggers(c.Context(), s.engine, in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(output)
}

// handleRetry handles POST /retry.
func (s *Server) handleRetry(c *fiber.Ctx) error {
	result, err := s.engine.RetryFailed(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.engine.Stats(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(stats)
}

func memoryID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("memory id must be a positive integer")
	}
	return id, nil
}

func (s *Server) badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

// fail maps engine errors onto status codes.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, memory.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case memory.IsNotFound(err):
		status = fiber.StatusNotFound
	case errors.Is(err, memory.ErrStoreUnavailable):
		status = fiber.StatusServiceUnavailable
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
