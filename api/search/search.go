// Package search provides the request types and normalization shared by the
// REST API and the MCP server. Both transports decode into these inputs and
// hand the normalized engine requests to the same [Engine].
package search

import (
	"context"
	"strings"

	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/triggers"
	"github.com/papercomputeco/recall/pkg/vector"
)

// Engine is the subset of the recall engine the transports call.
type Engine interface {
	Save(ctx context.Context, req engine.SaveRequest) (*memory.Record, error)
	Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResponse, error)
	Load(ctx context.Context, req engine.LoadRequest) (*engine.LoadResult, error)
	MatchTriggers(ctx context.Context, prompt string, limit int) []triggers.Match
}

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query         string   `json:"query,omitempty" jsonschema:"free text to search for; ignored when concepts are given"`
	Concepts      []string `json:"concepts,omitempty" jsonschema:"2 to 5 concepts that must all be similar to a result"`
	SpecFolder    string   `json:"spec_folder,omitempty" jsonschema:"restrict results to one spec folder"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results (default: 10)"`
	MinSimilarity *float32 `json:"min_similarity,omitempty" jsonschema:"per-concept similarity floor for concept searches (default: 0.5)"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query    string                `json:"query,omitempty"`
	Concepts []string              `json:"concepts,omitempty"`
	Results  []engine.SearchResult `json:"results"`
	Count    int                   `json:"count"`
	Degraded bool                  `json:"degraded"`
	Reason   string                `json:"reason,omitempty"`
}

// LoadInput represents the input arguments for a load request.
type LoadInput struct {
	SpecFolder string `json:"spec_folder,omitempty" jsonschema:"load the most recent memory of this spec folder"`
	AnchorID   string `json:"anchor_id,omitempty" jsonschema:"return only the named anchor section"`
	MemoryID   int64  `json:"memory_id,omitempty" jsonschema:"load a memory by id instead of by spec folder"`
}

// TriggersInput represents the input arguments for a trigger match.
type TriggersInput struct {
	Prompt string `json:"prompt" jsonschema:"the user prompt to match against saved trigger phrases"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of matches (default: 3)"`
}

// TriggersOutput represents the output of a trigger match.
type TriggersOutput struct {
	Matches []triggers.Match `json:"matches"`
	Count   int              `json:"count"`
}

// SaveInput represents the input arguments for a save request.
type SaveInput struct {
	SpecFolder       string   `json:"spec_folder" jsonschema:"logical grouping key, usually the spec directory"`
	FilePath         string   `json:"file_path" jsonschema:"path of the memory file, relative to the memory root"`
	AnchorID         string   `json:"anchor_id,omitempty" jsonschema:"anchor section the memory refers to"`
	Title            string   `json:"title,omitempty" jsonschema:"short label (default: file name)"`
	Content          string   `json:"content,omitempty" jsonschema:"memory text; read from file_path when empty"`
	TriggerPhrases   []string `json:"trigger_phrases,omitempty" jsonschema:"phrases that recall this memory; extracted when empty"`
	ImportanceWeight float64  `json:"importance_weight,omitempty" jsonschema:"importance in [0,1] (default: 0.5)"`
}

// SearchRequest normalizes a SearchInput.
func SearchRequest(in SearchInput) engine.SearchRequest {
	req := engine.SearchRequest{
		Query:         strings.TrimSpace(in.Query),
		SpecFolder:    strings.TrimSpace(in.SpecFolder),
		Limit:         in.Limit,
		MinSimilarity: in.MinSimilarity,
	}
	if req.Limit <= 0 {
		req.Limit = vector.DefaultLimit
	}
	for _, c := range in.Concepts {
		req.Concepts = append(req.Concepts, strings.TrimSpace(c))
	}
	return req
}

// Search runs a normalized search.
func Search(ctx context.Context, eng Engine, in SearchInput) (*SearchOutput, error) {
	req := SearchRequest(in)
	resp, err := eng.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{
		Query:    req.Query,
		Concepts: req.Concepts,
		Results:  resp.Results,
		Count:    len(resp.Results),
		Degraded: resp.Degraded,
		Reason:   resp.Reason,
	}, nil
}

// LoadRequest normalizes a LoadInput.
func LoadRequest(in LoadInput) engine.LoadRequest {
	return engine.LoadRequest{
		SpecFolder: strings.TrimSpace(in.SpecFolder),
		AnchorID:   strings.TrimSpace(in.AnchorID),
		MemoryID:   in.MemoryID,
	}
}

// Load runs a normalized load.
func Load(ctx context.Context, eng Engine, in LoadInput) (*engine.LoadResult, error) {
	return eng.Load(ctx, LoadRequest(in))
}

// TriggerLimit resolves the match limit. Zero selects the default; a
// negative limit matches nothing.
func TriggerLimit(limit int) int {
	switch {
	case limit == 0:
		return triggers.DefaultMatchLimit
	case limit < 0:
		return 0
	default:
		return limit
	}
}

// MatchTriggers runs a normalized trigger match.
// An empty prompt matches nothing.
func MatchTriggers(ctx context.Context, eng Engine, in TriggersInput) (*TriggersOutput, error) {
	matches := eng.MatchTriggers(ctx, in.Prompt, TriggerLimit(in.Limit))
	if matches == nil {
		matches = []triggers.Match{}
	}
	return &TriggersOutput{Matches: matches, Count: len(matches)}, nil
}

// SaveRequest normalizes a SaveInput.
func SaveRequest(in SaveInput) engine.SaveRequest {
	return engine.SaveRequest{
		SpecFolder:       strings.TrimSpace(in.SpecFolder),
		FilePath:         strings.TrimSpace(in.FilePath),
		AnchorID:         strings.TrimSpace(in.AnchorID),
		Title:            strings.TrimSpace(in.Title),
		Content:          in.Content,
		TriggerPhrases:   in.TriggerPhrases,
		ImportanceWeight: in.ImportanceWeight,
	}
}

// Save runs a normalized save.
func Save(ctx context.Context, eng Engine, in SaveInput) (*memory.Record, error) {
	return eng.Save(ctx, SaveRequest(in))
}
