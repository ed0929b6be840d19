// Package memory defines the records indexed by the recall engine.
//
// A Record is metadata about a saved unit of context (a conversation summary,
// a decision log, a spec note): where the durable content lives on disk, which
// spec folder it belongs to, and the trigger phrases extracted from it at save
// time. The content itself is never stored in the index.
//
// Records move through an embedding lifecycle tracked by [EmbeddingState]:
//
//	pending -> completed
//	pending -> pending (retry scheduled) -> ... -> completed | failed (exhausted)
//
// failed is terminal and only reachable by exhausting the retry budget, or
// when the vector capability is unavailable for the lifetime of the process.
package memory

import (
	"time"
)

const (
	// DefaultImportanceWeight is applied when a record is saved without an
	// explicit importance.
	DefaultImportanceWeight = 0.5

	// DefaultMaxAttempts is the default embedding retry budget per record.
	DefaultMaxAttempts = 5
)

// Record is one saved unit of context.
type Record struct {
	// ID is assigned by the store on insert and is monotonic per database.
	ID int64 `json:"id"`

	// SpecFolder is the logical project/feature grouping key.
	SpecFolder string `json:"spec_folder"`

	// FilePath is the durable on-disk location of the full memory content.
	FilePath string `json:"file_path"`

	// AnchorID optionally identifies a sub-section within FilePath.
	AnchorID string `json:"anchor_id,omitempty"`

	// Title is a short human-readable label.
	Title string `json:"title"`

	// TriggerPhrases are the short phrases matched against incoming prompts.
	TriggerPhrases []string `json:"trigger_phrases"`

	// ImportanceWeight is in [0,1]. It is carried for collaborators (cleanup,
	// ranking) and used as the tie-breaker for trigger matches.
	ImportanceWeight float64 `json:"importance_weight"`

	EmbeddingState

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize fills defaults and clamps ImportanceWeight into [0,1].
// A zero weight is treated as unset.
func (r *Record) Normalize() {
	switch {
	case r.ImportanceWeight <= 0:
		r.ImportanceWeight = DefaultImportanceWeight
	case r.ImportanceWeight > 1:
		r.ImportanceWeight = 1
	}

	if r.TriggerPhrases == nil {
		r.TriggerPhrases = []string{}
	}

	if r.Status == "" {
		r.Status = StatusPending
	}
}

// TriggerRow is the projection of a Record needed to build the trigger cache.
type TriggerRow struct {
	ID               int64
	SpecFolder       string
	FilePath         string
	Title            string
	TriggerPhrases   []string
	ImportanceWeight float64
}

// Row returns the trigger projection of the record.
func (r *Record) Row() TriggerRow {
	return TriggerRow{
		ID:               r.ID,
		SpecFolder:       r.SpecFolder,
		FilePath:         r.FilePath,
		Title:            r.Title,
		TriggerPhrases:   r.TriggerPhrases,
		ImportanceWeight: r.ImportanceWeight,
	}
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.TriggerPhrases = append([]string(nil), r.TriggerPhrases...)
	return &c
}
