// Package engine is the facade over the recall components. It saves memory
// records and answers the three retrieval modes: trigger matching, semantic
// search and direct load.
//
// Query operations never fail for environmental reasons. When the embedding
// model, the vector capability or the store is unavailable, they return a
// well-formed result flagged as degraded. Only invalid arguments and loads
// of missing records are reported as errors.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/retry"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/triggers"
	"github.com/papercomputeco/recall/pkg/vector"
	"github.com/papercomputeco/recall/pkg/worker"
)

// Config wires the engine's collaborators.
type Config struct {
	// Store is required. The engine owns it and closes it on Close.
	Store storage.VectorStore

	// Generator produces embeddings. Required. When it implements io.Closer
	// it is closed on Close.
	Generator retry.Generator

	// Publisher receives memory lifecycle events. Defaults to a no-op.
	Publisher eventstream.Publisher

	// Files resolves record file paths for load and embedding text.
	Files memory.Files

	// TriggerTTL defaults to triggers.DefaultTTL.
	TriggerTTL time.Duration

	// MaxPhrases caps extracted trigger phrases. Defaults to
	// triggers.DefaultMaxPhrases.
	MaxPhrases int

	// MaxAttempts is the embedding retry budget. Defaults to
	// memory.DefaultMaxAttempts.
	MaxAttempts int

	// RetryRatePerSecond paces RetryFailed. Zero means unpaced.
	RetryRatePerSecond float64

	// RetryBatchSize caps the records one RetryFailed pass attempts. Zero
	// means all.
	RetryBatchSize int

	// Async embeds saved records on a worker pool instead of inline.
	Async bool

	// Workers sizes the pool when Async is set.
	Workers uint

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	store       storage.VectorStore
	index       vector.Index
	generator   retry.Generator
	publisher   eventstream.Publisher
	files       memory.Files
	extractor   *triggers.Extractor
	matcher     *triggers.Matcher
	attempter   *retry.Attempter
	retries     *retry.Manager
	pool        *worker.Pool
	maxAttempts int
	logger      *slog.Logger
}

// New builds an engine. The vector strategy is chosen here, once.
func New(c Config) (*Engine, error) {
	if c.Store == nil {
		return nil, errors.New("store is required")
	}
	if c.Generator == nil {
		return nil, errors.New("embedding generator is required")
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = memory.DefaultMaxAttempts
	}
	log := logger.OrNop(c.Logger)

	e := &Engine{
		store:       c.Store,
		index:       vector.NewIndex(c.Store, log),
		generator:   c.Generator,
		publisher:   c.Publisher,
		files:       c.Files,
		extractor:   triggers.NewExtractor(c.MaxPhrases),
		matcher:     triggers.NewMatcher(c.Store, triggers.MatcherConfig{TTL: c.TriggerTTL, Now: c.Now}, log),
		maxAttempts: c.MaxAttempts,
		logger:      log,
	}

	e.attempter = &retry.Attempter{
		Store:       c.Store,
		Generator:   c.Generator,
		Publisher:   c.Publisher,
		MaxAttempts: c.MaxAttempts,
		Logger:      log,
	}

	retries, err := retry.NewManager(retry.Config{
		Store:         c.Store,
		Attempter:     e.attempter,
		Files:         c.Files,
		RatePerSecond: c.RetryRatePerSecond,
		BatchSize:     c.RetryBatchSize,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}
	e.retries = retries

	if c.Async && !e.index.Degraded() {
		pool, err := worker.NewPool(worker.Config{
			Attempter:  e.attempter,
			NumWorkers: c.Workers,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		e.pool = pool
	}

	return e, nil
}

// Degraded reports whether the engine runs without vector search.
func (e *Engine) Degraded() bool {
	return e.index.Degraded()
}

// InvalidateTriggers drops the trigger cache so the next match reloads it.
func (e *Engine) InvalidateTriggers() {
	e.matcher.ClearCache()
}

// WarmTriggers loads the trigger cache ahead of the first match.
func (e *Engine) WarmTriggers(ctx context.Context) error {
	return e.matcher.LoadCache(ctx, false)
}

// RetryFailed runs one reconciliation pass over pending embeddings.
func (e *Engine) RetryFailed(ctx context.Context) (retry.Result, error) {
	return e.retries.RetryFailedEmbeddings(ctx, e.maxAttempts)
}

// Stats describes the store and the trigger cache.
type Stats struct {
	Store    *storage.Stats      `json:"store"`
	Triggers triggers.CacheStats `json:"triggers"`
	Degraded bool                `json:"degraded"`
}

// Stats reports store counts and the trigger cache state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Store:    st,
		Triggers: e.matcher.Stats(),
		Degraded: e.index.Degraded(),
	}, nil
}

// Close drains pending embedding jobs and releases every owned resource.
func (e *Engine) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}

	var errs []error
	if err := e.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := e.generator.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) publish(ctx context.Context, event *eventstream.MemoryEvent) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event", "event_type", event.EventType, "error", err)
	}
}
