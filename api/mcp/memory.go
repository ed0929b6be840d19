package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/pkg/engine"
)

var (
	loadToolName    = "memory_load"
	loadDescription = "Load the full content of a saved memory, either the most recent one in a spec folder or one by id. An anchor id narrows the result to one marked section."

	triggersToolName    = "memory_match_triggers"
	triggersDescription = "Find memories whose trigger phrases appear in a prompt. Fast enough to call on every user turn."

	saveToolName    = "memory_save"
	saveDescription = "Save a memory file to the index. Trigger phrases are extracted from the content when none are given; the embedding is generated in the background."
)

// SaveOutput represents the structured output of a memory_save call.
type SaveOutput struct {
	ID             int64    `json:"id"`
	SpecFolder     string   `json:"spec_folder"`
	FilePath       string   `json:"file_path"`
	Title          string   `json:"title"`
	TriggerPhrases []string `json:"trigger_phrases"`
	Status         string   `json:"embedding_status"`
}

// handleLoad processes a memory_load request.
func (s *Server) handleLoad(ctx context.Context, _ *mcp.CallToolRequest, input search.LoadInput) (*mcp.CallToolResult, engine.LoadResult, error) {
	result, err := search.Load(ctx, s.config.Engine, input)
	if err != nil {
		return errorResult("Memory load failed: %v", err), engine.LoadResult{}, nil
	}
	return jsonResult(result), *result, nil
}

// handleMatchTriggers processes a memory_match_triggers request.
func (s *Server) handleMatchTriggers(ctx context.Context, _ *mcp.CallToolRequest, input search.TriggersInput) (*mcp.CallToolResult, search.TriggersOutput, error) {
	output, err := search.MatchTriggers(ctx, s.config.Engine, input)
	if err != nil {
		return errorResult("Trigger match failed: %v", err), search.TriggersOutput{}, nil
	}
	return jsonResult(output), *output, nil
}

// handleSave processes a memory_save request.
func (s *Server) handleSave(ctx context.Context, _ *mcp.CallToolRequest, input search.SaveInput) (*mcp.CallToolResult, SaveOutput, error) {
	rec, err := search.Save(ctx, s.config.Engine, input)
	if err != nil {
		s.config.Logger.Warn("save failed", "file_path", input.FilePath, "error", err)
		return errorResult("Memory save failed: %v", err), SaveOutput{}, nil
	}

	output := SaveOutput{
		ID:             rec.ID,
		SpecFolder:     rec.SpecFolder,
		FilePath:       rec.FilePath,
		Title:          rec.Title,
		TriggerPhrases: rec.TriggerPhrases,
		Status:         string(rec.Status),
	}
	return jsonResult(output), output, nil
}
