package vector

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// VectorBackedIndex delegates similarity to the store's vector table.
type VectorBackedIndex struct {
	store  storage.VectorStore
	logger *slog.Logger
}

var _ Index = (*VectorBackedIndex)(nil)

func NewVectorBackedIndex(store storage.VectorStore, log *slog.Logger) *VectorBackedIndex {
	return &VectorBackedIndex{store: store, logger: logger.OrNop(log)}
}

func (i *VectorBackedIndex) IndexMemory(ctx context.Context, rec *memory.Record, embedding []float32) (int64, error) {
	return i.store.Insert(ctx, rec, embedding)
}

func (i *VectorBackedIndex) VectorSearch(ctx context.Context, query []float32, opts SearchOptions) (*SearchResponse, error) {
	if len(query) == 0 {
		return nil, memory.InvalidArgumentf("query embedding is required")
	}

	scored, err := i.store.Similarity(ctx, storage.SimilarityQuery{
		Embeddings: [][]float32{query},
		SpecFolder: opts.SpecFolder,
		Limit:      limitOrDefault(opts.Limit),
	})
	if err != nil {
		return recoverable(i.logger, "vector_search", err)
	}
	return respond(scored, false), nil
}

func (i *VectorBackedIndex) MultiConceptSearch(ctx context.Context, queries [][]float32, opts MultiConceptOptions) (*SearchResponse, error) {
	if err := validateConcepts(len(queries)); err != nil {
		return nil, err
	}

	floor := opts.MinSimilarity
	scored, err := i.store.Similarity(ctx, storage.SimilarityQuery{
		Embeddings:    queries,
		MinSimilarity: &floor,
		SpecFolder:    opts.SpecFolder,
		Limit:         limitOrDefault(opts.Limit),
	})
	if err != nil {
		return recoverable(i.logger, "multi_concept_search", err)
	}
	return respond(scored, true), nil
}

func (i *VectorBackedIndex) GetMemory(ctx context.Context, id int64) (*memory.Record, error) {
	return getMemory(ctx, i.store, id)
}

func (i *VectorBackedIndex) Degraded() bool { return false }

func respond(scored []storage.Scored, concepts bool) *SearchResponse {
	resp := &SearchResponse{Results: make([]Result, 0, len(scored))}
	for _, s := range scored {
		r := Result{Record: s.Record, Similarity: s.Similarity}
		if concepts {
			r.ConceptSimilarities = s.Concepts
		}
		resp.Results = append(resp.Results, r)
	}
	return resp
}
