package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
)

type scanner interface {
	Scan(dest ...any) error
}

// recordRow holds the raw column values of a memory_index row.
type recordRow struct {
	id         int64
	specFolder string
	filePath   string
	anchorID   sql.NullString
	title      string
	phrases    string
	importance float64
	status     string
	retryCount int
	createdAt  int64
	updatedAt  int64
}

func (r *recordRow) dest() []any {
	return []any{
		&r.id, &r.specFolder, &r.filePath, &r.anchorID, &r.title, &r.phrases,
		&r.importance, &r.status, &r.retryCount, &r.createdAt, &r.updatedAt,
	}
}

func (r *recordRow) record() (*memory.Record, error) {
	status, err := memory.ParseEmbeddingStatus(r.status)
	if err != nil {
		return nil, fmt.Errorf("memory %d: %w", r.id, err)
	}
	return &memory.Record{
		ID:               r.id,
		SpecFolder:       r.specFolder,
		FilePath:         r.filePath,
		AnchorID:         r.anchorID.String,
		Title:            r.title,
		TriggerPhrases:   decodePhrases(r.phrases),
		ImportanceWeight: r.importance,
		EmbeddingState: memory.EmbeddingState{
			Status:     status,
			RetryCount: r.retryCount,
		},
		CreatedAt: time.Unix(0, r.createdAt).UTC(),
		UpdatedAt: time.Unix(0, r.updatedAt).UTC(),
	}, nil
}

func scanRecord(s scanner) (*memory.Record, error) {
	var r recordRow
	if err := s.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.record()
}

// decodePhrases tolerates malformed JSON by returning no phrases.
func decodePhrases(raw string) []string {
	phrases := []string{}
	if raw == "" {
		return phrases
	}
	if err := json.Unmarshal([]byte(raw), &phrases); err != nil {
		return []string{}
	}
	return phrases
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// serializeFloat32 converts a float32 slice to the little-endian byte format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
