// Package bootstrap builds a recall engine from resolved viper settings. Every
// command that touches the memory index opens it through Open so flag, env
// and config file precedence behave the same everywhere.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/recall/pkg/embeddings/utils"
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/kafka"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	vectorutils "github.com/papercomputeco/recall/pkg/vector/utils"
)

const (
	EventsNop   = "nop"
	EventsKafka = "kafka"
)

// Options tune how the engine is opened.
type Options struct {
	// ConfigDir overrides .recall/ resolution.
	ConfigDir string

	// Async embeds saved records on the worker pool. Long running commands
	// set it; one-shot commands embed inline so the result is final.
	Async bool

	// Events enables the configured publisher. One-shot commands leave it
	// off and publish nothing.
	Events bool

	Logger *slog.Logger
}

// ResolveSQLitePath returns the configured database path, or the default
// inside the .recall/ directory.
func ResolveSQLitePath(v *viper.Viper, configDir string) (string, error) {
	if p := strings.TrimSpace(v.GetString("storage.sqlite_path")); p != "" {
		return p, nil
	}
	return dotdir.NewManager().DatabasePath(configDir)
}

// Open builds the engine described by v. The caller closes it.
func Open(v *viper.Viper, o Options) (*engine.Engine, error) {
	log := logger.OrNop(o.Logger)

	dbPath, err := ResolveSQLitePath(v, o.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sqlite path: %w", err)
	}

	slow, err := config.ParseDuration("embedding.slow_threshold", v.GetString("embedding.slow_threshold"))
	if err != nil {
		return nil, err
	}
	ttl, err := config.ParseDuration("triggers.cache_ttl", v.GetString("triggers.cache_ttl"))
	if err != nil {
		return nil, err
	}

	dims := v.GetUint("embedding.dimensions")
	store, err := vectorutils.NewStore(&vectorutils.NewIndexOpts{
		ProviderType:  vectorutils.ProviderSQLite,
		DBPath:        dbPath,
		Dimensions:    dims,
		DisableVector: !v.GetBool("vector.enabled"),
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory index: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType:      v.GetString("embedding.provider"),
		TargetURL:         v.GetString("embedding.target"),
		Model:             v.GetString("embedding.model"),
		ModelPath:         v.GetString("embedding.model_path"),
		TokenizerPath:     v.GetString("embedding.tokenizer_path"),
		SharedLibraryPath: v.GetString("embedding.shared_library_path"),
		Dimensions:        dims,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating embedder: %w", err), store.Close())
	}

	provider, err := embeddings.NewProvider(embedder, embeddings.ProviderConfig{
		Dimensions:    dims,
		MaxChars:      v.GetInt("embedding.max_chars"),
		SlowThreshold: slow,
	}, log)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating embedding provider: %w", err), embedder.Close(), store.Close())
	}

	publisher, err := newPublisher(v, o.Events)
	if err != nil {
		return nil, errors.Join(err, provider.Close(), store.Close())
	}

	eng, err := engine.New(engine.Config{
		Store:              store,
		Generator:          provider,
		Publisher:          publisher,
		Files:              memory.Files{Root: v.GetString("storage.memory_root")},
		TriggerTTL:         ttl,
		MaxPhrases:         v.GetInt("triggers.max_phrases"),
		MaxAttempts:        v.GetInt("retry.max_attempts"),
		RetryRatePerSecond: v.GetFloat64("retry.rate_per_second"),
		RetryBatchSize:     v.GetInt("retry.batch_size"),
		Async:              o.Async,
		Logger:             log,
	})
	if err != nil {
		return nil, errors.Join(err, publisher.Close(), provider.Close(), store.Close())
	}

	log.Debug("memory index opened",
		"path", dbPath,
		"embedding_provider", v.GetString("embedding.provider"),
		"dimensions", dims,
		"degraded", eng.Degraded(),
	)
	return eng, nil
}

func newPublisher(v *viper.Viper, enabled bool) (eventstream.Publisher, error) {
	if !enabled {
		return nop.NewPublisher(), nil
	}

	switch provider := v.GetString("events.provider"); provider {
	case EventsNop, "":
		return nop.NewPublisher(), nil
	case EventsKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", provider)
	}
}

// Viper resolves configuration for cmd and binds the flags of fs named by
// keys, giving flag > env > config file > default precedence.
func Viper(cmd *cobra.Command, fs config.FlagSet, keys []string) (*viper.Viper, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, fs, keys)
	return v, nil
}

// Logger builds the CLI logger. Logs go to stderr so command output stays
// pipeable.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}
