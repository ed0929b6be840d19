package engine

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/triggers"
	"github.com/papercomputeco/recall/pkg/vector"
)

// DefaultMinSimilarity is the per-concept floor of a multi-concept search
// made without an explicit one.
const DefaultMinSimilarity float32 = 0.5

// ReasonModelUnavailable marks a search answered from trigger phrases
// because the query could not be embedded.
const ReasonModelUnavailable = "embedding model unavailable"

// SearchRequest is a semantic search. Concepts, when given, select a
// multi-concept search and Query is ignored.
type SearchRequest struct {
	Query      string   `json:"query,omitempty"`
	Concepts   []string `json:"concepts,omitempty"`
	SpecFolder string   `json:"spec_folder,omitempty"`

	// Limit defaults to vector.DefaultLimit.
	Limit int `json:"limit,omitempty"`

	// MinSimilarity applies to multi-concept search only. Nil means
	// DefaultMinSimilarity.
	MinSimilarity *float32 `json:"min_similarity,omitempty"`
}

// SearchResult is one ranked memory.
type SearchResult struct {
	ID                  int64     `json:"id"`
	SpecFolder          string    `json:"spec_folder"`
	FilePath            string    `json:"file_path"`
	Title               string    `json:"title"`
	Similarity          float32   `json:"similarity"`
	ConceptSimilarities []float32 `json:"concept_similarities,omitempty"`
	TriggerPhrases      []string  `json:"trigger_phrases"`
	CreatedAt           time.Time `json:"created_at,omitzero"`
}

// SearchResponse holds ranked results. When Degraded is set the results
// come from trigger phrases and Similarity is the fraction of a memory's
// phrases found in the query.
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Degraded bool           `json:"degraded"`
	Reason   string         `json:"reason,omitempty"`
}

// Search ranks memories by semantic similarity to the request.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	texts, err := searchTexts(req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = vector.DefaultLimit
	}

	if e.index.Degraded() {
		return e.triggerSearch(ctx, texts, req.SpecFolder, limit, vector.ReasonCapabilityUnavailable), nil
	}

	queries := make([][]float32, 0, len(texts))
	for _, text := range texts {
		q, err := e.generator.Generate(ctx, text)
		if err != nil {
			if errors.Is(err, memory.ErrInvalidArgument) {
				return nil, err
			}
			e.logger.Warn("query embedding failed, answering from trigger phrases", "error", err)
			return e.triggerSearch(ctx, texts, req.SpecFolder, limit, ReasonModelUnavailable), nil
		}
		queries = append(queries, q)
	}

	var resp *vector.SearchResponse
	if len(req.Concepts) > 0 {
		floor := DefaultMinSimilarity
		if req.MinSimilarity != nil {
			floor = *req.MinSimilarity
		}
		resp, err = e.index.MultiConceptSearch(ctx, queries, vector.MultiConceptOptions{
			MinSimilarity: floor,
			Limit:         limit,
			SpecFolder:    req.SpecFolder,
		})
	} else {
		resp, err = e.index.VectorSearch(ctx, queries[0], vector.SearchOptions{
			Limit:      limit,
			SpecFolder: req.SpecFolder,
		})
	}
	if err != nil {
		return nil, err
	}
	if resp.Degraded {
		return e.triggerSearch(ctx, texts, req.SpecFolder, limit, resp.Reason), nil
	}

	out := &SearchResponse{Results: make([]SearchResult, 0, len(resp.Results))}
	for _, r := range resp.Results {
		res := fromRecord(r.Record)
		res.Similarity = r.Similarity
		res.ConceptSimilarities = r.ConceptSimilarities
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func searchTexts(req SearchRequest) ([]string, error) {
	if len(req.Concepts) == 0 {
		q := strings.TrimSpace(req.Query)
		if q == "" {
			return nil, memory.InvalidArgumentf("query or concepts are required")
		}
		return []string{q}, nil
	}

	if n := len(req.Concepts); n < vector.MinConcepts || n > vector.MaxConcepts {
		return nil, memory.InvalidArgumentf("multi-concept search requires %d-%d concepts, got %d", vector.MinConcepts, vector.MaxConcepts, n)
	}
	texts := make([]string, len(req.Concepts))
	for i, c := range req.Concepts {
		texts[i] = strings.TrimSpace(c)
		if texts[i] == "" {
			return nil, memory.InvalidArgumentf("concept %d is empty", i+1)
		}
	}
	return texts, nil
}

// triggerSearch approximates a search with trigger phrases. For several
// texts a memory must match each of them, mirroring the AND semantics of a
// multi-concept search, and its score is the mean fraction.
func (e *Engine) triggerSearch(ctx context.Context, texts []string, specFolder string, limit int, reason string) *SearchResponse {
	type hit struct {
		match  triggers.Match
		scores []float32
	}
	hits := make(map[int64]*hit)
	var order []int64

	for i, text := range texts {
		for _, m := range e.matcher.Match(ctx, text, math.MaxInt) {
			if specFolder != "" && m.SpecFolder != specFolder {
				continue
			}
			h, ok := hits[m.MemoryID]
			if !ok {
				if i > 0 {
					continue
				}
				h = &hit{match: m}
				hits[m.MemoryID] = h
				order = append(order, m.MemoryID)
			}
			if len(h.scores) == i {
				h.scores = append(h.scores, float32(len(m.MatchedPhrases))/float32(max(m.TotalPhrases, 1)))
			}
		}
	}

	results := make([]SearchResult, 0, len(order))
	for _, id := range order {
		h := hits[id]
		if len(h.scores) != len(texts) {
			continue
		}
		var sum float32
		for _, s := range h.scores {
			sum += s
		}

		res := SearchResult{
			ID:         h.match.MemoryID,
			SpecFolder: h.match.SpecFolder,
			FilePath:   h.match.FilePath,
			Title:      h.match.Title,
			Similarity: sum / float32(len(h.scores)),
		}
		if len(texts) > 1 {
			res.ConceptSimilarities = h.scores
		}
		// best effort, the cache already holds what is needed to answer
		if rec, err := e.index.GetMemory(ctx, id); err == nil && rec != nil {
			res.TriggerPhrases = rec.TriggerPhrases
			res.CreatedAt = rec.CreatedAt
		}
		if res.TriggerPhrases == nil {
			res.TriggerPhrases = h.match.MatchedPhrases
		}
		results = append(results, res)
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return &SearchResponse{Results: results, Degraded: true, Reason: reason}
}

func fromRecord(rec *memory.Record) SearchResult {
	return SearchResult{
		ID:             rec.ID,
		SpecFolder:     rec.SpecFolder,
		FilePath:       rec.FilePath,
		Title:          rec.Title,
		TriggerPhrases: rec.TriggerPhrases,
		CreatedAt:      rec.CreatedAt,
	}
}
