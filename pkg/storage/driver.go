// Package storage defines the persistent store for memory records: a
// relational table of metadata plus a vector-capable companion table that
// shares the record's row id.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
)

// Driver persists memory record metadata. It is the authoritative state for
// every derived structure (trigger cache, vector index).
type Driver interface {
	// Insert stores the record and, when embedding is non-nil, its vector in
	// a single transaction. The record's ID, CreatedAt and UpdatedAt are set
	// on success. A non-nil embedding marks the record completed.
	Insert(ctx context.Context, rec *memory.Record, embedding []float32) (int64, error)

	// Get retrieves a record by id. Returns memory.NotFoundError when absent.
	Get(ctx context.Context, id int64) (*memory.Record, error)

	// Latest returns the most recent record in a spec folder. When anchorID
	// is non-empty only records saved with that anchor are considered.
	Latest(ctx context.Context, specFolder, anchorID string) (*memory.Record, error)

	// Delete removes the record row and its vector atomically.
	Delete(ctx context.Context, id int64) error

	// TriggerRows returns the trigger projection of every record.
	TriggerRows(ctx context.Context) ([]memory.TriggerRow, error)

	// Retryable returns records whose embedding is not completed and whose
	// retry count is below maxAttempts, oldest first. limit <= 0 means all.
	Retryable(ctx context.Context, maxAttempts, limit int) ([]*memory.Record, error)

	// RecordEmbeddingFailure applies one failed attempt to the record's
	// embedding state and returns the new state.
	RecordEmbeddingFailure(ctx context.Context, id int64, maxAttempts int) (memory.EmbeddingState, error)

	// Stats summarizes the store contents.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying connection.
	Close() error
}

// VectorStore is a Driver that also owns the embedding companion table.
type VectorStore interface {
	Driver

	// VectorCapable reports whether vector storage and similarity are
	// available. It is decided once when the store is opened.
	VectorCapable() bool

	// Dimensions is the fixed embedding dimension of the companion table.
	Dimensions() uint

	// ReplaceEmbedding replaces the record's vector wholesale and marks the
	// record completed in the same transaction.
	ReplaceEmbedding(ctx context.Context, id int64, embedding []float32) error

	// Embedding returns the stored vector of a record, or nil when the
	// record has none.
	Embedding(ctx context.Context, id int64) ([]float32, error)

	// Similarity scores completed records against every query embedding.
	Similarity(ctx context.Context, q SimilarityQuery) ([]Scored, error)
}

// SimilarityQuery selects and ranks records by cosine similarity.
type SimilarityQuery struct {
	// Embeddings holds one or more unit-length query vectors.
	Embeddings [][]float32

	// MinSimilarity, when set, is applied to every per-embedding similarity:
	// a record qualifies only if all of them meet it.
	MinSimilarity *float32

	// SpecFolder restricts results to one folder when non-empty.
	SpecFolder string

	// Limit caps the number of results.
	Limit int
}

// Scored is a record ranked by similarity.
type Scored struct {
	Record *memory.Record

	// Similarity is the mean of Concepts.
	Similarity float32

	// Concepts holds the similarity to each query embedding, in query order.
	Concepts []float32
}

// Stats summarizes store contents by embedding status.
type Stats struct {
	Total         int       `json:"total"`
	Pending       int       `json:"pending"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	Vectors       int       `json:"vectors"`
	VectorCapable bool      `json:"vector_capable"`
	LastCreatedAt time.Time `json:"last_created_at,omitzero"`
}
