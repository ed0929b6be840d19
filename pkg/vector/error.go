package vector

import (
	"errors"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/memory"
)

// recoverable converts an environmental search failure into a degraded
// response. Invalid arguments are returned as errors.
func recoverable(log *slog.Logger, op string, err error) (*SearchResponse, error) {
	switch {
	case errors.Is(err, memory.ErrInvalidArgument):
		return nil, err
	case errors.Is(err, memory.ErrCapabilityUnavailable):
		return degraded(ReasonCapabilityUnavailable), nil
	case errors.Is(err, memory.ErrStoreUnavailable):
		log.Warn("store unavailable, returning degraded results", "op", op, "error", err)
		return degraded(ReasonStoreUnavailable), nil
	default:
		log.Error("vector search failed, returning degraded results", "op", op, "error", err)
		return degraded(err.Error()), nil
	}
}
