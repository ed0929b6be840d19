package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. RECALL_API_LISTEN.
const EnvPrefix = "RECALL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RECALL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RECALL_API_LISTEN, RECALL_STORAGE_SQLITE_PATH, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.memory_root", d.Storage.MemoryRoot)

	v.SetDefault("vector.enabled", d.Vector.Enabled)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.max_chars", d.Embedding.MaxChars)
	v.SetDefault("embedding.slow_threshold", d.Embedding.SlowThreshold)
	v.SetDefault("embedding.model_path", d.Embedding.ModelPath)
	v.SetDefault("embedding.tokenizer_path", d.Embedding.TokenizerPath)
	v.SetDefault("embedding.shared_library_path", d.Embedding.SharedLibraryPath)

	v.SetDefault("triggers.cache_ttl", d.Triggers.CacheTTL)
	v.SetDefault("triggers.max_phrases", d.Triggers.MaxPhrases)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.rate_per_second", d.Retry.RatePerSecond)
	v.SetDefault("retry.interval", d.Retry.Interval)
	v.SetDefault("retry.batch_size", d.Retry.BatchSize)

	v.SetDefault("api.listen", d.API.Listen)

	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
