// Package retry reconciles memory records whose embedding has not been
// generated yet.
//
// An [Attempter] performs one embedding attempt for one record and records
// the outcome in the store. The async worker pool uses it right after a save;
// the [Manager] uses it for one reconciliation pass over every retryable
// record.
package retry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Generator produces the embedding for a text.
type Generator interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Attempter embeds a record and stores the result.
type Attempter struct {
	Store       storage.VectorStore
	Generator   Generator
	Publisher   eventstream.Publisher
	MaxAttempts int
	Logger      *slog.Logger
}

// Attempt embeds text for rec. On success the vector replaces any previous
// one and the record becomes completed. On failure one attempt is charged to
// the record. rec's embedding state is updated to match the store.
func (a *Attempter) Attempt(ctx context.Context, rec *memory.Record, text string) (memory.EmbeddingState, error) {
	log := logger.OrNop(a.Logger)

	embedding, genErr := a.Generator.Generate(ctx, text)
	if genErr == nil {
		err := a.Store.ReplaceEmbedding(ctx, rec.ID, embedding)
		if err == nil {
			rec.EmbeddingState = rec.Succeed()
			a.publish(ctx, log, eventstream.NewMemoryEvent(eventstream.EventTypeMemoryEmbedded, rec).WithEmbedding(rec.EmbeddingState, nil))
			log.Debug("stored embedding", "id", rec.ID, "embedding_dim", len(embedding))
			return rec.EmbeddingState, nil
		}
		if errors.Is(err, memory.ErrStoreUnavailable) || memory.IsNotFound(err) {
			// nothing to charge the attempt to
			return rec.EmbeddingState, err
		}
		genErr = err
	}

	state, err := a.Store.RecordEmbeddingFailure(ctx, rec.ID, a.MaxAttempts)
	if err != nil {
		log.Warn("failed to record embedding failure", "id", rec.ID, "error", err)
		return rec.EmbeddingState, genErr
	}
	rec.EmbeddingState = state

	log.Warn("failed to generate embedding",
		"id", rec.ID,
		"retry_count", state.RetryCount,
		"status", state.Status,
		"error", genErr,
	)
	a.publish(ctx, log, eventstream.NewMemoryEvent(eventstream.EventTypeEmbeddingFailed, rec).WithEmbedding(state, genErr))
	return state, genErr
}

func (a *Attempter) publish(ctx context.Context, log *slog.Logger, event *eventstream.MemoryEvent) {
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event", "event_type", event.EventType, "error", err)
	}
}
