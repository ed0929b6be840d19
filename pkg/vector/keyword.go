package vector

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// KeywordOnlyIndex is used when the store has no vector capability. Records
// are still stored; searches return empty degraded responses and the engine
// answers from trigger phrases instead.
type KeywordOnlyIndex struct {
	store  storage.Driver
	logger *slog.Logger
}

var _ Index = (*KeywordOnlyIndex)(nil)

func NewKeywordOnlyIndex(store storage.Driver, log *slog.Logger) *KeywordOnlyIndex {
	return &KeywordOnlyIndex{store: store, logger: logger.OrNop(log)}
}

// IndexMemory stores the record as failed without consuming retry budget.
// The embedding, if any, is dropped.
func (i *KeywordOnlyIndex) IndexMemory(ctx context.Context, rec *memory.Record, _ []float32) (int64, error) {
	if rec == nil {
		return 0, memory.InvalidArgumentf("cannot store nil record")
	}
	rec.EmbeddingState = rec.Unsupported()
	return i.store.Insert(ctx, rec, nil)
}

func (i *KeywordOnlyIndex) VectorSearch(context.Context, []float32, SearchOptions) (*SearchResponse, error) {
	return degraded(ReasonCapabilityUnavailable), nil
}

func (i *KeywordOnlyIndex) MultiConceptSearch(_ context.Context, queries [][]float32, _ MultiConceptOptions) (*SearchResponse, error) {
	if err := validateConcepts(len(queries)); err != nil {
		return nil, err
	}
	return degraded(ReasonCapabilityUnavailable), nil
}

func (i *KeywordOnlyIndex) GetMemory(ctx context.Context, id int64) (*memory.Record, error) {
	return getMemory(ctx, i.store, id)
}

func (i *KeywordOnlyIndex) Degraded() bool { return true }
