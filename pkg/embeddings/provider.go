package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
)

const (
	// DefaultMaxChars is the input length, in runes, beyond which text is
	// truncated before inference.
	DefaultMaxChars = 2000

	// DefaultSlowThreshold is the latency above which a generation is
	// logged as slow. Slow calls are never aborted.
	DefaultSlowThreshold = 500 * time.Millisecond

	// DefaultCacheSize is the number of recent texts whose vectors are kept.
	DefaultCacheSize = 256
)

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Dimensions is the expected vector length. Required.
	Dimensions uint

	// MaxChars defaults to DefaultMaxChars.
	MaxChars int

	// SlowThreshold defaults to DefaultSlowThreshold.
	SlowThreshold time.Duration

	// CacheSize defaults to DefaultCacheSize. Negative disables the cache.
	CacheSize int
}

// Provider generates normalized embeddings from a backend Embedder.
type Provider struct {
	embedder      Embedder
	dimensions    uint
	maxChars      int
	slowThreshold time.Duration
	cache         *lru.Cache[string, []float32]
	logger        *slog.Logger
}

// NewProvider wraps e.
func NewProvider(e Embedder, c ProviderConfig, log *slog.Logger) (*Provider, error) {
	if e == nil {
		return nil, errors.New("embedder is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("embedding dimensions cannot be 0, must be configured")
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}

	p := &Provider{
		embedder:      e,
		dimensions:    c.Dimensions,
		maxChars:      c.MaxChars,
		slowThreshold: c.SlowThreshold,
		logger:        logger.OrNop(log),
	}

	if c.CacheSize > 0 {
		cache, err := lru.New[string, []float32](c.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating embedding cache: %w", err)
		}
		p.cache = cache
	}

	return p, nil
}

// Dimensions is the length of every generated vector.
func (p *Provider) Dimensions() uint {
	return p.dimensions
}

// Generate embeds text. Empty or whitespace-only text is an invalid argument;
// every backend failure is reported as memory.ErrModelUnavailable.
func (p *Provider) Generate(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, memory.InvalidArgumentf("cannot embed empty text")
	}

	text = Truncate(text, p.maxChars)

	if p.cache != nil {
		if v, ok := p.cache.Get(text); ok {
			return slices.Clone(v), nil
		}
	}

	start := time.Now()
	raw, err := p.embedder.Embed(ctx, text)
	elapsed := time.Since(start)

	if elapsed > p.slowThreshold {
		p.logger.Warn("slow embedding generation",
			"elapsed", elapsed,
			"threshold", p.slowThreshold,
			"chars", utf8.RuneCountInString(text),
		)
	}

	if err != nil {
		if errors.Is(err, memory.ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", memory.ErrModelUnavailable, err)
	}

	if uint(len(raw)) != p.dimensions {
		return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
			memory.ErrModelUnavailable, len(raw), p.dimensions)
	}

	v, ok := Normalize(raw)
	if !ok {
		return nil, fmt.Errorf("%w: model returned a zero vector", memory.ErrModelUnavailable)
	}

	if p.cache != nil {
		p.cache.Add(text, slices.Clone(v))
	}
	return v, nil
}

// Close closes the backend.
func (p *Provider) Close() error {
	if p.cache != nil {
		p.cache.Purge()
	}
	return p.embedder.Close()
}

// Truncate cuts text to at most maxChars runes.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

// Normalize returns v scaled to unit length. ok is false for a zero or
// non-finite vector.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}
