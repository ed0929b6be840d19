// Package vector provides similarity search over memory records.
//
// Two strategies implement [Index]: [VectorBackedIndex] when the store can
// hold vectors and [KeywordOnlyIndex] when it cannot. [NewIndex] picks one
// when the engine starts and the choice never changes for the life of the
// process. Callers never branch on capability themselves; they read the
// Degraded flag on each response.
package vector

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	// DefaultLimit applies when a search is made with limit <= 0.
	DefaultLimit = 10

	// MinConcepts and MaxConcepts bound a multi-concept search.
	MinConcepts = 2
	MaxConcepts = 5

	ReasonCapabilityUnavailable = "vector capability unavailable"
	ReasonStoreUnavailable      = "store unavailable"
)

// Index indexes records and serves similarity search.
type Index interface {
	// IndexMemory stores rec and, when embedding is non-nil, its vector in
	// one transaction. A nil embedding leaves the record pending.
	IndexMemory(ctx context.Context, rec *memory.Record, embedding []float32) (int64, error)

	// VectorSearch ranks completed records by similarity to query. No
	// similarity floor is applied.
	VectorSearch(ctx context.Context, query []float32, opts SearchOptions) (*SearchResponse, error)

	// MultiConceptSearch returns records whose similarity to every query
	// meets opts.MinSimilarity, ranked by mean similarity. It requires
	// between MinConcepts and MaxConcepts queries.
	MultiConceptSearch(ctx context.Context, queries [][]float32, opts MultiConceptOptions) (*SearchResponse, error)

	// GetMemory returns the record, or nil when it does not exist.
	GetMemory(ctx context.Context, id int64) (*memory.Record, error)

	// Degraded reports whether the index runs without vector search.
	Degraded() bool
}

// SearchOptions configures VectorSearch.
type SearchOptions struct {
	Limit      int
	SpecFolder string
}

// MultiConceptOptions configures MultiConceptSearch.
type MultiConceptOptions struct {
	MinSimilarity float32
	Limit         int
	SpecFolder    string
}

// Result is a ranked record.
type Result struct {
	Record *memory.Record `json:"record"`

	// Similarity is the cosine similarity, or the mean across concepts for a
	// multi-concept search.
	Similarity float32 `json:"similarity"`

	// ConceptSimilarities holds per-concept similarity for a multi-concept
	// search, in query order.
	ConceptSimilarities []float32 `json:"concept_similarities,omitempty"`
}

// SearchResponse is a possibly empty, possibly degraded result list. A
// degraded response is still well-formed; Reason says why it is degraded.
type SearchResponse struct {
	Results  []Result `json:"results"`
	Degraded bool     `json:"degraded"`
	Reason   string   `json:"reason,omitempty"`
}

func degraded(reason string) *SearchResponse {
	return &SearchResponse{Results: []Result{}, Degraded: true, Reason: reason}
}

func validateConcepts(n int) error {
	if n < MinConcepts || n > MaxConcepts {
		return memory.InvalidArgumentf("multi-concept search requires %d-%d concepts, got %d", MinConcepts, MaxConcepts, n)
	}
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// NewIndex selects the strategy for store. It logs the capability decision
// once; nothing is logged per call afterwards.
func NewIndex(store storage.VectorStore, log *slog.Logger) Index {
	log = logger.OrNop(log)

	if store.VectorCapable() {
		log.Info("vector search enabled", "dimensions", store.Dimensions())
		return NewVectorBackedIndex(store, log)
	}

	log.Warn("vector search disabled, running in trigger-only mode",
		"error", memory.ErrCapabilityUnavailable,
	)
	return NewKeywordOnlyIndex(store, log)
}

func getMemory(ctx context.Context, store storage.Driver, id int64) (*memory.Record, error) {
	rec, err := store.Get(ctx, id)
	if memory.IsNotFound(err) {
		return nil, nil
	}
	return rec, err
}
