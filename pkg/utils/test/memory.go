package testutils

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// FlakyStore wraps a VectorStore and fails every call with
// memory.ErrStoreUnavailable while Fail is set.
type FlakyStore struct {
	storage.VectorStore

	fail         atomic.Bool
	triggerLoads atomic.Int64
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner storage.VectorStore) *FlakyStore {
	return &FlakyStore{VectorStore: inner}
}

// SetFail toggles failure mode.
func (f *FlakyStore) SetFail(v bool) {
	f.fail.Store(v)
}

// TriggerLoads counts TriggerRows calls, successful or not.
func (f *FlakyStore) TriggerLoads() int {
	return int(f.triggerLoads.Load())
}

func (f *FlakyStore) err() error {
	if f.fail.Load() {
		return fmt.Errorf("%w: flaky store", memory.ErrStoreUnavailable)
	}
	return nil
}

func (f *FlakyStore) Insert(ctx context.Context, rec *memory.Record, embedding []float32) (int64, error) {
	if err := f.err(); err != nil {
		return 0, err
	}
	return f.VectorStore.Insert(ctx, rec, embedding)
}

func (f *FlakyStore) Get(ctx context.Context, id int64) (*memory.Record, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.VectorStore.Get(ctx, id)
}

func (f *FlakyStore) Latest(ctx context.Context, specFolder, anchorID string) (*memory.Record, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.VectorStore.Latest(ctx, specFolder, anchorID)
}

func (f *FlakyStore) TriggerRows(ctx context.Context) ([]memory.TriggerRow, error) {
	f.triggerLoads.Add(1)
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.VectorStore.TriggerRows(ctx)
}

func (f *FlakyStore) Retryable(ctx context.Context, maxAttempts, limit int) ([]*memory.Record, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.VectorStore.Retryable(ctx, maxAttempts, limit)
}

func (f *FlakyStore) ReplaceEmbedding(ctx context.Context, id int64, embedding []float32) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.VectorStore.ReplaceEmbedding(ctx, id, embedding)
}

func (f *FlakyStore) Similarity(ctx context.Context, q storage.SimilarityQuery) ([]storage.Scored, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.VectorStore.Similarity(ctx, q)
}
