// Package sqlite provides the SQLite-backed memory store.
//
// Metadata lives in the memory_index table. Embeddings live in the
// vec_memories vec0 virtual table from sqlite-vec, keyed by the same integer
// rowid as the metadata row, so a record and its vector are always written and
// deleted in one transaction.
//
// sqlite-vec is optional: when the extension cannot be loaded (or vectors are
// disabled by configuration) the store still serves metadata and
// VectorCapable reports false for the lifetime of the process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	recordColumns = `id, spec_folder, file_path, anchor_id, title, trigger_phrases,
		importance_weight, embedding_status, retry_count, created_at, updated_at`
)

// Config holds configuration for the SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint

	// DisableVector skips sqlite-vec entirely and opens the store in
	// metadata-only mode.
	DisableVector bool

	// Now overrides the clock used for created_at/updated_at.
	Now func() time.Time
}

// Driver implements storage.VectorStore on SQLite.
type Driver struct {
	db         *sql.DB
	logger     *slog.Logger
	dimensions uint
	vecVersion string
	vecCapable bool
	now        func() time.Time
	closed     atomic.Bool
}

var _ storage.VectorStore = (*Driver)(nil)

// NewDriver opens (or creates) the store at c.DBPath and runs the schema.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 && !c.DisableVector {
		return nil, errors.New("embedding dimensions cannot be 0, must be configured")
	}
	log = logger.OrNop(log)

	if !c.DisableVector {
		// registers sqlite-vec on every new connection
		sqlite_vec.Auto()
	}

	if c.DBPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(c.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(c.DBPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: in-memory databases are per connection, and SQLite
	// serializes writers anyway. WAL keeps readers in other processes
	// unblocked.
	db.SetMaxOpenConns(1)

	d := &Driver{
		db:         db,
		logger:     log,
		dimensions: c.Dimensions,
		now:        c.Now,
	}
	if d.now == nil {
		d.now = time.Now
	}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if !c.DisableVector {
		d.detectVector()
	}

	log.Info("sqlite memory store initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vector_capable", d.vecCapable,
		"vec_version", d.vecVersion,
	)

	return d, nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return path + "?_busy_timeout=5000"
	}
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func (d *Driver) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_index (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			spec_folder TEXT NOT NULL,
			file_path TEXT NOT NULL,
			anchor_id TEXT,
			title TEXT NOT NULL DEFAULT '',
			trigger_phrases TEXT NOT NULL DEFAULT '[]',
			importance_weight REAL NOT NULL DEFAULT 0.5,
			embedding_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (embedding_status IN ('pending', 'completed', 'failed')),
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_index_folder ON memory_index(spec_folder, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_index_status ON memory_index(embedding_status, retry_count)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// detectVector probes sqlite-vec and creates the companion table. Any failure
// leaves the store in metadata-only mode.
func (d *Driver) detectVector() {
	var version string
	if err := d.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		d.logger.Warn("sqlite-vec not available, vector search disabled", "error", err)
		return
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(embedding float[%d])`,
		d.dimensions,
	)
	if _, err := d.db.Exec(createVec); err != nil {
		d.logger.Warn("creating vec0 table failed, vector search disabled", "error", err)
		return
	}

	d.vecVersion = version
	d.vecCapable = true
}

// VectorCapable reports whether the vec0 companion table is usable.
func (d *Driver) VectorCapable() bool {
	return d.vecCapable
}

// Dimensions is the configured embedding dimension.
func (d *Driver) Dimensions() uint {
	return d.dimensions
}

// Insert stores the record and optional embedding in one transaction. rec is
// only updated once the transaction commits.
func (d *Driver) Insert(ctx context.Context, rec *memory.Record, embedding []float32) (int64, error) {
	if rec == nil {
		return 0, memory.InvalidArgumentf("cannot store nil record")
	}
	if err := d.check(); err != nil {
		return 0, err
	}

	row := rec.Clone()
	row.Normalize()

	var embBlob []byte
	if embedding != nil {
		if err := d.validEmbedding(embedding); err != nil {
			return 0, err
		}
		embBlob = serializeFloat32(embedding)
		row.EmbeddingState = row.Succeed()
	}

	phrases, err := json.Marshal(row.TriggerPhrases)
	if err != nil {
		return 0, fmt.Errorf("encoding trigger phrases: %w", err)
	}

	now := d.now().UTC()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO memory_index (
			spec_folder, file_path, anchor_id, title, trigger_phrases,
			importance_weight, embedding_status, retry_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SpecFolder, row.FilePath, nullString(row.AnchorID), row.Title, string(phrases),
		row.ImportanceWeight, string(row.Status), row.RetryCount, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return 0, classify(fmt.Errorf("inserting memory: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting rowid: %w", err)
	}

	if embBlob != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_memories(rowid, embedding) VALUES (?, ?)`, id, embBlob,
		); err != nil {
			return 0, classify(fmt.Errorf("inserting embedding for memory %d: %w", id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("committing transaction: %w", err))
	}

	row.ID = id
	row.CreatedAt = now
	row.UpdatedAt = now
	*rec = *row

	d.logger.Debug("stored memory",
		"id", id,
		"spec_folder", rec.SpecFolder,
		"status", rec.Status,
		"has_embedding", embBlob != nil,
	)

	return id, nil
}

// Get retrieves a record by id.
func (d *Driver) Get(ctx context.Context, id int64) (*memory.Record, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	row := d.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM memory_index WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, classify(fmt.Errorf("getting memory %d: %w", id, err))
	}
	return rec, nil
}

// Latest returns the most recent record of a spec folder.
func (d *Driver) Latest(ctx context.Context, specFolder, anchorID string) (*memory.Record, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM memory_index WHERE spec_folder = ?`
	args := []any{specFolder}
	if anchorID != "" {
		query += ` AND anchor_id = ?`
		args = append(args, anchorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	rec, err := scanRecord(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.NotFoundError{SpecFolder: specFolder, AnchorID: anchorID}
	}
	if err != nil {
		return nil, classify(fmt.Errorf("getting latest memory in %q: %w", specFolder, err))
	}
	return rec, nil
}

// Delete removes a record and its vector atomically.
func (d *Driver) Delete(ctx context.Context, id int64) error {
	if err := d.check(); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if d.vecCapable {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_memories WHERE rowid = ?`, id); err != nil {
			return classify(fmt.Errorf("deleting embedding %d: %w", id, err))
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM memory_index WHERE id = ?`, id)
	if err != nil {
		return classify(fmt.Errorf("deleting memory %d: %w", id, err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return memory.NotFoundError{ID: id}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// TriggerRows returns the trigger projection of every record.
func (d *Driver) TriggerRows(ctx context.Context) ([]memory.TriggerRow, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, spec_folder, file_path, title, trigger_phrases, importance_weight
		FROM memory_index
		ORDER BY id`)
	if err != nil {
		return nil, classify(fmt.Errorf("querying trigger rows: %w", err))
	}
	defer rows.Close()

	var out []memory.TriggerRow
	for rows.Next() {
		var (
			tr      memory.TriggerRow
			phrases string
		)
		if err := rows.Scan(&tr.ID, &tr.SpecFolder, &tr.FilePath, &tr.Title, &phrases, &tr.ImportanceWeight); err != nil {
			return nil, fmt.Errorf("scanning trigger row: %w", err)
		}
		tr.TriggerPhrases = decodePhrases(phrases)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterating trigger rows: %w", err))
	}
	return out, nil
}

// Retryable returns records whose embedding still needs to be generated.
func (d *Driver) Retryable(ctx context.Context, maxAttempts, limit int) ([]*memory.Record, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = memory.DefaultMaxAttempts
	}

	query := `SELECT ` + recordColumns + ` FROM memory_index
		WHERE embedding_status != 'completed' AND retry_count < ?
		ORDER BY updated_at ASC, id ASC`
	args := []any{maxAttempts}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return d.queryRecords(ctx, query, args...)
}

// RecordEmbeddingFailure applies one failed attempt to the record.
func (d *Driver) RecordEmbeddingFailure(ctx context.Context, id int64, maxAttempts int) (memory.EmbeddingState, error) {
	if err := d.check(); err != nil {
		return memory.EmbeddingState{}, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.EmbeddingState{}, classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	var (
		status string
		state  memory.EmbeddingState
	)
	err = tx.QueryRowContext(ctx,
		`SELECT embedding_status, retry_count FROM memory_index WHERE id = ?`, id,
	).Scan(&status, &state.RetryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.EmbeddingState{}, memory.NotFoundError{ID: id}
	}
	if err != nil {
		return memory.EmbeddingState{}, classify(fmt.Errorf("reading embedding state %d: %w", id, err))
	}
	if state.Status, err = memory.ParseEmbeddingStatus(status); err != nil {
		return memory.EmbeddingState{}, err
	}

	next := state.Fail(maxAttempts)
	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_index SET embedding_status = ?, retry_count = ?, updated_at = ? WHERE id = ?`,
		string(next.Status), next.RetryCount, d.now().UTC().UnixNano(), id,
	); err != nil {
		return memory.EmbeddingState{}, classify(fmt.Errorf("updating embedding state %d: %w", id, err))
	}

	if err := tx.Commit(); err != nil {
		return memory.EmbeddingState{}, classify(fmt.Errorf("committing transaction: %w", err))
	}
	return next, nil
}

// ReplaceEmbedding swaps the record's vector and marks it completed.
func (d *Driver) ReplaceEmbedding(ctx context.Context, id int64, embedding []float32) error {
	if err := d.check(); err != nil {
		return err
	}
	if err := d.validEmbedding(embedding); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE memory_index SET embedding_status = 'completed', updated_at = ? WHERE id = ?`,
		d.now().UTC().UnixNano(), id,
	)
	if err != nil {
		return classify(fmt.Errorf("updating memory %d: %w", id, err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return memory.NotFoundError{ID: id}
	}

	// vec0 does not support UPDATE
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_memories WHERE rowid = ?`, id); err != nil {
		return classify(fmt.Errorf("deleting old embedding %d: %w", id, err))
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_memories(rowid, embedding) VALUES (?, ?)`, id, serializeFloat32(embedding),
	); err != nil {
		return classify(fmt.Errorf("inserting embedding %d: %w", id, err))
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// Embedding returns the stored vector of a record, or nil when it has none.
func (d *Driver) Embedding(ctx context.Context, id int64) ([]float32, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if !d.vecCapable {
		return nil, nil
	}

	var blob []byte
	err := d.db.QueryRowContext(ctx, `SELECT embedding FROM vec_memories WHERE rowid = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("reading embedding %d: %w", id, err))
	}
	return deserializeFloat32(blob)
}

// Similarity scores completed records against every query embedding. The
// per-embedding floor and the mean ranking are evaluated inside SQLite.
func (d *Driver) Similarity(ctx context.Context, q storage.SimilarityQuery) ([]storage.Scored, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if !d.vecCapable {
		return nil, memory.ErrCapabilityUnavailable
	}
	if len(q.Embeddings) == 0 {
		return nil, memory.InvalidArgumentf("at least one query embedding is required")
	}

	n := len(q.Embeddings)
	sims := make([]string, n)
	names := make([]string, n)
	args := make([]any, 0, 2*n+2)
	for i, emb := range q.Embeddings {
		if err := d.validEmbedding(emb); err != nil {
			return nil, err
		}
		names[i] = fmt.Sprintf("s%d", i)
		sims[i] = fmt.Sprintf("1.0 - vec_distance_cosine(v.embedding, ?) AS %s", names[i])
		args = append(args, serializeFloat32(emb))
	}

	inner := `SELECT m.id, m.spec_folder, m.file_path, m.anchor_id, m.title, m.trigger_phrases,
			m.importance_weight, m.embedding_status, m.retry_count, m.created_at, m.updated_at, ` +
		strings.Join(sims, ", ") + `
		FROM vec_memories v
		INNER JOIN memory_index m ON m.id = v.rowid
		WHERE m.embedding_status = 'completed'`
	if q.SpecFolder != "" {
		inner += ` AND m.spec_folder = ?`
		args = append(args, q.SpecFolder)
	}

	query := `SELECT * FROM (` + inner + `)`
	if q.MinSimilarity != nil {
		conds := make([]string, n)
		for i, name := range names {
			conds[i] = name + " >= ?"
			args = append(args, float64(*q.MinSimilarity))
		}
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	mean := fmt.Sprintf("(%s) / %d.0", strings.Join(names, " + "), n)
	query += ` ORDER BY ` + mean + ` DESC, created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying similarity: %w", err))
	}
	defer rows.Close()

	var out []storage.Scored
	for rows.Next() {
		var (
			r        recordRow
			concepts = make([]float64, n)
		)
		dest := r.dest()
		for i := range concepts {
			dest = append(dest, &concepts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning similarity row: %w", err)
		}
		rec, err := r.record()
		if err != nil {
			return nil, err
		}

		scored := storage.Scored{Record: rec, Concepts: make([]float32, n)}
		var sum float64
		for i, c := range concepts {
			scored.Concepts[i] = float32(c)
			sum += c
		}
		scored.Similarity = float32(sum / float64(n))
		out = append(out, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterating similarity rows: %w", err))
	}

	d.logger.Debug("queried sqlite-vec",
		"concepts", n,
		"spec_folder", q.SpecFolder,
		"results", len(out),
	)
	return out, nil
}

// Stats summarizes store contents.
func (d *Driver) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := d.check(); err != nil {
		return nil, err
	}

	var (
		st   = &storage.Stats{VectorCapable: d.vecCapable}
		last sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN embedding_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN embedding_status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN embedding_status = 'failed' THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM memory_index`,
	).Scan(&st.Total, &st.Pending, &st.Completed, &st.Failed, &last)
	if err != nil {
		return nil, classify(fmt.Errorf("reading stats: %w", err))
	}
	if last.Valid {
		st.LastCreatedAt = time.Unix(0, last.Int64).UTC()
	}

	if d.vecCapable {
		if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_memories`).Scan(&st.Vectors); err != nil {
			return nil, classify(fmt.Errorf("counting vectors: %w", err))
		}
	}
	return st, nil
}

// Close releases resources held by the driver. Later calls fail with
// memory.ErrStoreUnavailable.
func (d *Driver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.db.Close()
}

func (d *Driver) check() error {
	if d.closed.Load() {
		return fmt.Errorf("%w: database closed", memory.ErrStoreUnavailable)
	}
	return nil
}

func (d *Driver) validEmbedding(embedding []float32) error {
	if !d.vecCapable {
		return memory.ErrCapabilityUnavailable
	}
	if uint(len(embedding)) != d.dimensions {
		return memory.InvalidArgumentf("embedding has %d dimensions, store expects %d", len(embedding), d.dimensions)
	}
	return nil
}

func (d *Driver) queryRecords(ctx context.Context, query string, args ...any) ([]*memory.Record, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying memories: %w", err))
	}
	defer rows.Close()

	var out []*memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterating memories: %w", err))
	}
	return out, nil
}

// classify marks errors that mean the store cannot be reached right now.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
		}
	}
	return storage.Unavailable(err)
}
