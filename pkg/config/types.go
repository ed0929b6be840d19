package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Vector    VectorConfig    `toml:"vector"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Triggers  TriggersConfig  `toml:"triggers"`
	Retry     RetryConfig     `toml:"retry"`
	API       APIConfig       `toml:"api"`
	Events    EventsConfig    `toml:"events"`
}

// StorageConfig holds the memory index location and the root that relative
// memory file paths resolve against.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
	MemoryRoot string `toml:"memory_root,omitempty"`
}

// VectorConfig toggles vector search. Disabled runs trigger-only.
type VectorConfig struct {
	Enabled bool `toml:"enabled"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string `toml:"provider,omitempty"`
	Target        string `toml:"target,omitempty"`
	Model         string `toml:"model,omitempty"`
	Dimensions    uint   `toml:"dimensions,omitempty"`
	MaxChars      int    `toml:"max_chars,omitempty"`
	SlowThreshold string `toml:"slow_threshold,omitempty"`

	// ONNX backend files.
	ModelPath         string `toml:"model_path,omitempty"`
	TokenizerPath     string `toml:"tokenizer_path,omitempty"`
	SharedLibraryPath string `toml:"shared_library_path,omitempty"`
}

// TriggersConfig holds trigger cache and extraction settings.
type TriggersConfig struct {
	CacheTTL   string `toml:"cache_ttl,omitempty"`
	MaxPhrases int    `toml:"max_phrases,omitempty"`
}

// RetryConfig holds embedding retry settings. An empty Interval disables
// the periodic retry pass of recall serve.
type RetryConfig struct {
	MaxAttempts   int     `toml:"max_attempts,omitempty"`
	RatePerSecond float64 `toml:"rate_per_second,omitempty"`
	Interval      string  `toml:"interval,omitempty"`
	BatchSize     int     `toml:"batch_size,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig selects the event publisher: "nop" or "kafka".
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// ParseDuration parses a duration setting. Empty means zero.
func ParseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(key string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := ParseDuration(key, v); err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(key string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.memory_root": stringKey(func(c *Config) *string { return &c.Storage.MemoryRoot }),
	"vector.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Vector.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for vector.enabled: %w", err)
			}
			c.Vector.Enabled = b
			return nil
		},
	},
	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.max_chars":           intKey("embedding.max_chars", func(c *Config) *int { return &c.Embedding.MaxChars }),
	"embedding.slow_threshold":      durationKey("embedding.slow_threshold", func(c *Config) *string { return &c.Embedding.SlowThreshold }),
	"embedding.model_path":          stringKey(func(c *Config) *string { return &c.Embedding.ModelPath }),
	"embedding.tokenizer_path":      stringKey(func(c *Config) *string { return &c.Embedding.TokenizerPath }),
	"embedding.shared_library_path": stringKey(func(c *Config) *string { return &c.Embedding.SharedLibraryPath }),
	"triggers.cache_ttl":            durationKey("triggers.cache_ttl", func(c *Config) *string { return &c.Triggers.CacheTTL }),
	"triggers.max_phrases":          intKey("triggers.max_phrases", func(c *Config) *int { return &c.Triggers.MaxPhrases }),
	"retry.max_attempts":            intKey("retry.max_attempts", func(c *Config) *int { return &c.Retry.MaxAttempts }),
	"retry.rate_per_second": {
		get: func(c *Config) string {
			if c.Retry.RatePerSecond == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Retry.RatePerSecond, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for retry.rate_per_second: %w", err)
			}
			c.Retry.RatePerSecond = f
			return nil
		},
	},
	"retry.batch_size": intKey("retry.batch_size", func(c *Config) *int { return &c.Retry.BatchSize }),
	"retry.interval":   durationKey("retry.interval", func(c *Config) *string { return &c.Retry.Interval }),
	"api.listen":       stringKey(func(c *Config) *string { return &c.API.Listen }),
	"events.provider":  stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
