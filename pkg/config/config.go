// Package config manages the persistent recall configuration, config.toml in
// the .recall/ directory, and its viper binding for commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .recall/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// orderedKeys lists config keys in TOML section order.
var orderedKeys = []string{
	"storage.sqlite_path",
	"storage.memory_root",
	"vector.enabled",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.max_chars",
	"embedding.slow_threshold",
	"embedding.model_path",
	"embedding.tokenizer_path",
	"embedding.shared_library_path",
	"triggers.cache_ttl",
	"triggers.max_phrases",
	"retry.max_attempts",
	"retry.rate_per_second",
	"retry.interval",
	"retry.batch_size",
	"api.listen",
	"events.provider",
	"events.brokers",
	"events.topic",
}

// ValidConfigKeys returns all supported configuration key names in a stable
// order matching the TOML section layout.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .recall/ directory. Missing
// files and missing fields take their defaults from NewDefaultConfig.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// SaveConfig persists the configuration to config.toml in the target .recall/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns the default Config adjusted for the named embedding
// preset. Supported presets: "ollama", "onnx", "keyword".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "ollama":
		return cfg, nil

	case "onnx":
		cfg.Embedding = EmbeddingConfig{
			Provider:      "onnx",
			Model:         "all-MiniLM-L6-v2",
			Dimensions:    384,
			MaxChars:      defaultEmbeddingMaxChars,
			SlowThreshold: defaultSlowThreshold,
			ModelPath:     "models/all-MiniLM-L6-v2/model.onnx",
			TokenizerPath: "models/all-MiniLM-L6-v2/vocab.txt",
		}
		return cfg, nil

	case "keyword":
		cfg.Vector.Enabled = false
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"ollama", "onnx", "keyword"}
}

// ParseConfigTOML parses raw TOML bytes on top of NewDefaultConfig.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	for _, d := range []struct{ key, val string }{
		{"embedding.slow_threshold", cfg.Embedding.SlowThreshold},
		{"triggers.cache_ttl", cfg.Triggers.CacheTTL},
		{"retry.interval", cfg.Retry.Interval},
	} {
		if _, err := ParseDuration(d.key, d.val); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
