package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/recall/pkg/anchor"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/triggers"
)

// LoadRequest identifies a memory by id or by spec folder. Exactly one of
// SpecFolder and MemoryID must be set.
type LoadRequest struct {
	SpecFolder string `json:"spec_folder,omitempty"`
	AnchorID   string `json:"anchor_id,omitempty"`
	MemoryID   int64  `json:"memory_id,omitempty"`
}

// LoadResult is a memory with its content. Content is the anchored section
// when Anchor is set and the whole file otherwise.
type LoadResult struct {
	ID         int64  `json:"id"`
	SpecFolder string `json:"spec_folder"`
	FilePath   string `json:"file_path"`
	Title      string `json:"title"`
	Anchor     string `json:"anchor,omitempty"`
	Content    string `json:"content"`
}

// Load returns the content of a memory. A spec folder resolves to its most
// recent memory, preferring one saved for the requested anchor.
func (e *Engine) Load(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	specFolder := strings.TrimSpace(req.SpecFolder)
	anchorID := strings.TrimSpace(req.AnchorID)

	switch {
	case specFolder == "" && req.MemoryID == 0:
		return nil, memory.InvalidArgumentf("one of spec folder or memory id is required")
	case specFolder != "" && req.MemoryID != 0:
		return nil, memory.InvalidArgumentf("spec folder and memory id are mutually exclusive")
	case req.MemoryID < 0:
		return nil, memory.InvalidArgumentf("memory id must be positive")
	}

	var (
		rec *memory.Record
		err error
	)
	if req.MemoryID != 0 {
		rec, err = e.store.Get(ctx, req.MemoryID)
	} else {
		rec, err = e.latest(ctx, specFolder, anchorID)
	}
	if err != nil {
		return nil, err
	}

	content, err := e.files.Read(rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading memory %d: %w", rec.ID, err)
	}

	res := &LoadResult{
		ID:         rec.ID,
		SpecFolder: rec.SpecFolder,
		FilePath:   rec.FilePath,
		Title:      rec.Title,
		Content:    content,
	}
	if anchorID == "" {
		return res, nil
	}

	section, err := anchor.Extract(content, anchorID)
	if errors.Is(err, anchor.ErrNotFound) {
		nf := memory.NotFoundError{AnchorID: anchorID, SpecFolder: specFolder, Anchors: anchor.List(content)}
		if specFolder == "" {
			nf.ID = rec.ID
		}
		return nil, nf
	}
	res.Anchor = anchorID
	res.Content = section
	return res, nil
}

func (e *Engine) latest(ctx context.Context, specFolder, anchorID string) (*memory.Record, error) {
	if anchorID != "" {
		rec, err := e.store.Latest(ctx, specFolder, anchorID)
		if !memory.IsNotFound(err) {
			return rec, err
		}
	}
	return e.store.Latest(ctx, specFolder, "")
}

// MatchTriggers returns at most limit memories whose trigger phrases appear
// in prompt. Callers without a preference pass triggers.DefaultMatchLimit.
func (e *Engine) MatchTriggers(ctx context.Context, prompt string, limit int) []triggers.Match {
	return e.matcher.Match(ctx, prompt, limit)
}
