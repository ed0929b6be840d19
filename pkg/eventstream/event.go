package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryIndexed is emitted after a memory record is saved.
	EventTypeMemoryIndexed = "recall.memory.indexed"

	// EventTypeMemoryEmbedded is emitted after a record's vector is stored.
	EventTypeMemoryEmbedded = "recall.memory.embedded"

	// EventTypeEmbeddingFailed is emitted after a failed embedding attempt.
	EventTypeEmbeddingFailed = "recall.memory.embedding_failed"

	// EventTypeMemoryDeleted is emitted after a record is deleted.
	EventTypeMemoryDeleted = "recall.memory.deleted"
)

// MemoryEvent is a transport-neutral event payload for a memory lifecycle
// change.
type MemoryEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	Memory        MemoryMeta `json:"memory"`
	Embedding     *Embedding `json:"embedding,omitempty"`
}

// MemoryMeta identifies the record the event is about.
type MemoryMeta struct {
	ID             int64    `json:"id"`
	SpecFolder     string   `json:"spec_folder"`
	FilePath       string   `json:"file_path"`
	AnchorID       string   `json:"anchor_id,omitempty"`
	Title          string   `json:"title"`
	TriggerPhrases []string `json:"trigger_phrases"`
}

// Embedding describes the embedding state after the event.
type Embedding struct {
	Status     memory.EmbeddingStatus `json:"status"`
	RetryCount int                    `json:"retry_count"`
	Error      string                 `json:"error,omitempty"`
}

// NewMemoryEvent builds an event of eventType for rec.
func NewMemoryEvent(eventType string, rec *memory.Record) *MemoryEvent {
	return &MemoryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Memory: MemoryMeta{
			ID:             rec.ID,
			SpecFolder:     rec.SpecFolder,
			FilePath:       rec.FilePath,
			AnchorID:       rec.AnchorID,
			Title:          rec.Title,
			TriggerPhrases: rec.TriggerPhrases,
		},
	}
}

// WithEmbedding attaches the embedding state and, when non-nil, the error
// of the attempt.
func (e *MemoryEvent) WithEmbedding(state memory.EmbeddingState, err error) *MemoryEvent {
	e.Embedding = &Embedding{Status: state.Status, RetryCount: state.RetryCount}
	if err != nil {
		e.Embedding.Error = err.Error()
	}
	return e
}
