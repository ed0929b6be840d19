package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/worker"
)

// SaveRequest describes a memory to index.
type SaveRequest struct {
	SpecFolder string `json:"spec_folder"`
	FilePath   string `json:"file_path"`
	AnchorID   string `json:"anchor_id,omitempty"`

	// Title defaults to the file name without extension.
	Title string `json:"title,omitempty"`

	// Content is used for phrase extraction and embedding. When empty the
	// file at FilePath is read.
	Content string `json:"content,omitempty"`

	// TriggerPhrases are extracted from the title and content when empty.
	TriggerPhrases []string `json:"trigger_phrases,omitempty"`

	ImportanceWeight float64 `json:"importance_weight,omitempty"`
}

// Save indexes a memory. The record is committed as pending and its
// embedding is generated afterwards; a model failure never fails the save.
func (e *Engine) Save(ctx context.Context, req SaveRequest) (*memory.Record, error) {
	specFolder := strings.TrimSpace(req.SpecFolder)
	filePath := strings.TrimSpace(req.FilePath)
	if specFolder == "" {
		return nil, memory.InvalidArgumentf("spec folder is required")
	}
	if filePath == "" {
		return nil, memory.InvalidArgumentf("file path is required")
	}
	if err := e.files.Validate(filePath); err != nil {
		return nil, err
	}

	content := req.Content
	if content == "" {
		c, err := e.files.Read(filePath)
		if err != nil {
			e.logger.Debug("saving memory without readable content", "file_path", filePath, "error", err)
		}
		content = c
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		base := filepath.Base(filePath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	phrases := cleanPhrases(req.TriggerPhrases)
	if len(phrases) == 0 {
		phrases = e.extractor.Extract(title + "\n\n" + content)
	}

	rec := &memory.Record{
		SpecFolder:       specFolder,
		FilePath:         filePath,
		AnchorID:         strings.TrimSpace(req.AnchorID),
		Title:            title,
		TriggerPhrases:   phrases,
		ImportanceWeight: req.ImportanceWeight,
	}
	rec.Normalize()

	if _, err := e.index.IndexMemory(ctx, rec, nil); err != nil {
		return nil, fmt.Errorf("saving memory: %w", err)
	}

	e.matcher.ClearCache()
	e.publish(ctx, eventstream.NewMemoryEvent(eventstream.EventTypeMemoryIndexed, rec).WithEmbedding(rec.EmbeddingState, nil))
	e.logger.Info("memory saved",
		"id", rec.ID,
		"spec_folder", rec.SpecFolder,
		"trigger_phrases", len(rec.TriggerPhrases),
	)

	if e.index.Degraded() {
		return rec, nil
	}

	text := memory.EmbeddingText(rec, content)
	if e.pool != nil {
		e.pool.Enqueue(worker.Job{Record: rec.Clone(), Text: text})
		return rec, nil
	}

	state, _ := e.attempter.Attempt(ctx, rec, text)
	rec.EmbeddingState = state
	return rec, nil
}

// Get returns the indexed record for id.
func (e *Engine) Get(ctx context.Context, id int64) (*memory.Record, error) {
	if id <= 0 {
		return nil, memory.InvalidArgumentf("memory id must be positive")
	}
	return e.store.Get(ctx, id)
}

// Delete removes a memory and its vector.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return memory.InvalidArgumentf("memory id must be positive")
	}

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}

	e.matcher.ClearCache()
	e.publish(ctx, eventstream.NewMemoryEvent(eventstream.EventTypeMemoryDeleted, rec))
	e.logger.Info("memory deleted", "id", id)
	return nil
}

func cleanPhrases(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
