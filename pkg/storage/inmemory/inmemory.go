// Package inmemory provides a map-backed memory store. Similarity is computed
// in process, so it is vector capable without any extension. It backs tests
// and ephemeral runs (`recall serve --in-memory`).
package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Config configures the in-memory store.
type Config struct {
	Dimensions uint

	// DisableVector makes the store behave like a database without the
	// vector extension.
	DisableVector bool

	Now func() time.Time
}

// Driver implements storage.VectorStore using in-memory maps.
type Driver struct {
	// mu guards every field below
	mu sync.RWMutex

	records map[int64]*memory.Record
	vectors map[int64][]float32
	nextID  int64
	closed  bool

	dimensions uint
	vecCapable bool
	now        func() time.Time
}

var _ storage.VectorStore = (*Driver)(nil)

// NewDriver creates a new in-memory store.
func NewDriver(c Config) *Driver {
	d := &Driver{
		records:    make(map[int64]*memory.Record),
		vectors:    make(map[int64][]float32),
		dimensions: c.Dimensions,
		vecCapable: !c.DisableVector && c.Dimensions > 0,
		now:        c.Now,
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

func (d *Driver) VectorCapable() bool { return d.vecCapable }

func (d *Driver) Dimensions() uint { return d.dimensions }

// Insert stores a copy of rec and its optional embedding.
func (d *Driver) Insert(_ context.Context, rec *memory.Record, embedding []float32) (int64, error) {
	if rec == nil {
		return 0, memory.InvalidArgumentf("cannot store nil record")
	}
	if embedding != nil {
		if err := d.validEmbedding(embedding); err != nil {
			return 0, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errClosed
	}

	rec.Normalize()
	if embedding != nil {
		rec.EmbeddingState = rec.Succeed()
	}

	now := d.now().UTC()
	d.nextID++
	rec.ID = d.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now

	d.records[rec.ID] = rec.Clone()
	if embedding != nil {
		d.vectors[rec.ID] = slices.Clone(embedding)
	}
	return rec.ID, nil
}

// Get retrieves a copy of the record.
func (d *Driver) Get(_ context.Context, id int64) (*memory.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}

	rec, ok := d.records[id]
	if !ok {
		return nil, memory.NotFoundError{ID: id}
	}
	return rec.Clone(), nil
}

// Latest returns the most recent record of a folder.
func (d *Driver) Latest(_ context.Context, specFolder, anchorID string) (*memory.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}

	var latest *memory.Record
	for _, rec := range d.records {
		if rec.SpecFolder != specFolder || (anchorID != "" && rec.AnchorID != anchorID) {
			continue
		}
		if latest == nil || newer(rec, latest) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, memory.NotFoundError{SpecFolder: specFolder, AnchorID: anchorID}
	}
	return latest.Clone(), nil
}

// Delete removes the record and its vector.
func (d *Driver) Delete(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}

	if _, ok := d.records[id]; !ok {
		return memory.NotFoundError{ID: id}
	}
	delete(d.records, id)
	delete(d.vectors, id)
	return nil
}

// TriggerRows returns the trigger projection of every record, by id.
func (d *Driver) TriggerRows(_ context.Context) ([]memory.TriggerRow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}

	rows := make([]memory.TriggerRow, 0, len(d.records))
	for _, rec := range d.records {
		row := rec.Row()
		row.TriggerPhrases = slices.Clone(row.TriggerPhrases)
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b memory.TriggerRow) int { return cmp.Compare(a.ID, b.ID) })
	return rows, nil
}

// Retryable returns records whose embedding is still outstanding.
func (d *Driver) Retryable(_ context.Context, maxAttempts, limit int) ([]*memory.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}

	var out []*memory.Record
	for _, rec := range d.records {
		if rec.Retryable(maxAttempts) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *memory.Record) int {
		return cmp.Or(a.UpdatedAt.Compare(b.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordEmbeddingFailure applies one failed attempt.
func (d *Driver) RecordEmbeddingFailure(_ context.Context, id int64, maxAttempts int) (memory.EmbeddingState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return memory.EmbeddingState{}, errClosed
	}

	rec, ok := d.records[id]
	if !ok {
		return memory.EmbeddingState{}, memory.NotFoundError{ID: id}
	}
	rec.EmbeddingState = rec.Fail(maxAttempts)
	rec.UpdatedAt = d.now().UTC()
	return rec.EmbeddingState, nil
}

// ReplaceEmbedding stores the vector and marks the record completed.
func (d *Driver) ReplaceEmbedding(_ context.Context, id int64, embedding []float32) error {
	if err := d.validEmbedding(embedding); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}

	rec, ok := d.records[id]
	if !ok {
		return memory.NotFoundError{ID: id}
	}
	rec.EmbeddingState = rec.Succeed()
	rec.UpdatedAt = d.now().UTC()
	d.vectors[id] = slices.Clone(embedding)
	return nil
}

// Embedding returns a copy of the record's vector.
func (d *Driver) Embedding(_ context.Context, id int64) ([]float32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}
	return slices.Clone(d.vectors[id]), nil
}

// Similarity scores completed records by cosine similarity.
func (d *Driver) Similarity(_ context.Context, q storage.SimilarityQuery) ([]storage.Scored, error) {
	if !d.vecCapable {
		return nil, memory.ErrCapabilityUnavailable
	}
	if len(q.Embeddings) == 0 {
		return nil, memory.InvalidArgumentf("at least one query embedding is required")
	}
	for _, emb := range q.Embeddings {
		if err := d.validEmbedding(emb); err != nil {
			return nil, err
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}

	var out []storage.Scored
	for id, vec := range d.vectors {
		rec := d.records[id]
		if rec == nil || rec.Status != memory.StatusCompleted {
			continue
		}
		if q.SpecFolder != "" && rec.SpecFolder != q.SpecFolder {
			continue
		}

		scored := storage.Scored{Record: rec.Clone(), Concepts: make([]float32, len(q.Embeddings))}
		var sum float32
		keep := true
		for i, emb := range q.Embeddings {
			sim := cosine(emb, vec)
			if q.MinSimilarity != nil && sim < *q.MinSimilarity {
				keep = false
				break
			}
			scored.Concepts[i] = sim
			sum += sim
		}
		if !keep {
			continue
		}
		scored.Similarity = sum / float32(len(q.Embeddings))
		out = append(out, scored)
	}

	slices.SortFunc(out, func(a, b storage.Scored) int {
		return cmp.Or(
			cmp.Compare(b.Similarity, a.Similarity),
			b.Record.CreatedAt.Compare(a.Record.CreatedAt),
			cmp.Compare(b.Record.ID, a.Record.ID),
		)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats summarizes the store.
func (d *Driver) Stats(_ context.Context) (*storage.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errClosed
	}

	st := &storage.Stats{
		Total:         len(d.records),
		Vectors:       len(d.vectors),
		VectorCapable: d.vecCapable,
	}
	for _, rec := range d.records {
		switch rec.Status {
		case memory.StatusPending:
			st.Pending++
		case memory.StatusCompleted:
			st.Completed++
		case memory.StatusFailed:
			st.Failed++
		}
		if rec.CreatedAt.After(st.LastCreatedAt) {
			st.LastCreatedAt = rec.CreatedAt
		}
	}
	return st, nil
}

// Close marks the store closed. Later calls fail with ErrStoreUnavailable.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

var errClosed = fmt.Errorf("%w: in-memory store closed", memory.ErrStoreUnavailable)

func (d *Driver) validEmbedding(embedding []float32) error {
	if !d.vecCapable {
		return memory.ErrCapabilityUnavailable
	}
	if uint(len(embedding)) != d.dimensions {
		return memory.InvalidArgumentf("embedding has %d dimensions, store expects %d", len(embedding), d.dimensions)
	}
	return nil
}

func newer(a, b *memory.Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
