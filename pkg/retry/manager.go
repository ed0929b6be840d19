package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Result summarizes one reconciliation pass.
type Result struct {
	// Retried is the number of records attempted.
	Retried int `json:"retried"`

	// Succeeded is the number of records now completed.
	Succeeded int `json:"succeeded"`

	// Exhausted is the number of records whose retry budget ran out on this
	// pass.
	Exhausted int `json:"exhausted"`
}

// Config configures a Manager.
type Config struct {
	Store     storage.VectorStore
	Attempter *Attempter

	// Files reads record content to include in the embedding text.
	Files memory.Files

	// RatePerSecond paces attempts. Zero means unpaced.
	RatePerSecond float64

	// BatchSize caps the records attempted per pass. Zero means all.
	BatchSize int

	Logger *slog.Logger
}

// Manager runs reconciliation passes. Scheduling is up to the caller.
type Manager struct {
	store     storage.VectorStore
	attempter *Attempter
	files     memory.Files
	limiter   *rate.Limiter
	batch     int
	logger    *slog.Logger
}

// NewManager creates a Manager.
func NewManager(c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, errors.New("store is required")
	}
	if c.Attempter == nil {
		return nil, errors.New("attempter is required")
	}

	m := &Manager{
		store:     c.Store,
		attempter: c.Attempter,
		files:     c.Files,
		batch:     c.BatchSize,
		logger:    logger.OrNop(c.Logger),
	}
	if c.RatePerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(c.RatePerSecond), 1)
	}
	return m, nil
}

// RetryFailedEmbeddings makes one attempt for every record that is not
// completed and has attempts left. Without vector capability it is a no-op.
// A store failure while listing is returned; failures of single attempts are
// counted and logged.
func (m *Manager) RetryFailedEmbeddings(ctx context.Context, maxAttempts int) (Result, error) {
	var res Result
	if maxAttempts <= 0 {
		maxAttempts = memory.DefaultMaxAttempts
	}

	if !m.store.VectorCapable() {
		m.logger.Debug("skipping embedding retry, vector capability unavailable")
		return res, nil
	}

	recs, err := m.store.Retryable(ctx, maxAttempts, m.batch)
	if err != nil {
		return res, fmt.Errorf("listing retryable memories: %w", err)
	}
	if len(recs) == 0 {
		return res, nil
	}

	attempter := *m.attempter
	attempter.MaxAttempts = maxAttempts

	for _, rec := range recs {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		content, err := m.files.Read(rec.FilePath)
		if err != nil {
			m.logger.Debug("embedding without file content", "id", rec.ID, "error", err)
		}

		res.Retried++
		state, err := attempter.Attempt(ctx, rec, memory.EmbeddingText(rec, content))
		switch {
		case err == nil:
			res.Succeeded++
		case state.Exhausted(maxAttempts):
			res.Exhausted++
		case errors.Is(err, memory.ErrStoreUnavailable):
			return res, err
		}
	}

	m.logger.Info("embedding retry pass complete",
		"retried", res.Retried,
		"succeeded", res.Succeeded,
		"exhausted", res.Exhausted,
	)
	return res, nil
}
