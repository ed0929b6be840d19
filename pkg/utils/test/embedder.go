package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
)

// MockEmbedder is a test embedder that returns predictable embeddings.
//
// Lookup order: exact Embeddings entry, then a bag-of-words vector over
// Vocabulary (one dimension per term, counted as substrings), then a
// deterministic FNV-seeded vector.
type MockEmbedder struct {
	Dimensions int

	Embeddings map[string][]float32

	// Vocabulary gives tests control over which texts are similar.
	Vocabulary []string

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// Delay is slept before every call.
	Delay time.Duration

	unavailable atomic.Bool
	calls       atomic.Int64

	mu    sync.Mutex
	texts []string
}

func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		Dimensions: dimensions,
		Embeddings: make(map[string][]float32),
	}
}

// NewVocabularyEmbedder returns an embedder with one dimension per term.
func NewVocabularyEmbedder(terms ...string) *MockEmbedder {
	m := NewMockEmbedder(len(terms))
	m.Vocabulary = terms
	return m
}

// SetUnavailable toggles every call failing with memory.ErrModelUnavailable.
func (m *MockEmbedder) SetUnavailable(v bool) {
	m.unavailable.Store(v)
}

// Calls is the number of Embed calls made so far.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}

// Texts returns every text passed to Embed, in order.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.unavailable.Load() {
		return nil, fmt.Errorf("%w: mock embedder offline", memory.ErrModelUnavailable)
	}
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return append([]float32(nil), emb...), nil
	}

	if len(m.Vocabulary) > 0 {
		lower := strings.ToLower(text)
		v := make([]float32, len(m.Vocabulary))
		var any bool
		for i, term := range m.Vocabulary {
			v[i] = float32(strings.Count(lower, strings.ToLower(term)))
			any = any || v[i] > 0
		}
		if any {
			return v, nil
		}
	}

	return hashVector(text, m.Dimensions), nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

// hashVector generates a deterministic vector in [-1, 1] seeded by the FNV
// hash of text.
func hashVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, dims)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return v
}
