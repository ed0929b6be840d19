package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on both "recall serve" and "recall search").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagSQLite         = "sqlite"
	FlagMemoryRoot     = "memory-root"
	FlagVector         = "vector"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagEmbeddingDims  = "embedding-dimensions"
	FlagAPIListen      = "listen"
	FlagRetryInterval  = "retry-interval"
	FlagEventsProvider = "events-provider"
	FlagEventsTopic    = "events-topic"
)

// EngineFlags are shared by every command that opens the memory index.
var EngineFlags = FlagSet{
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite memory index (default: .recall/recall.sqlite)",
	},
	FlagMemoryRoot: {
		Name:        "memory-root",
		ViperKey:    "storage.memory_root",
		Description: "Directory that relative memory file paths resolve against",
	},
	FlagVector: {
		Name:        "vector",
		ViperKey:    "vector.enabled",
		Description: "Enable vector search (disable for trigger-only mode)",
	},
	FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider type (ollama, onnx)",
	},
	FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding dimensionality",
	},
}

// ServeFlags are specific to recall serve.
var ServeFlags = FlagSet{
	FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagRetryInterval: {
		Name:        "retry-interval",
		ViperKey:    "retry.interval",
		Description: "Interval between embedding retry passes (empty disables)",
	},
	FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Event publisher (nop, kafka)",
	},
	FlagEventsTopic: {
		Name:        "events-topic",
		ViperKey:    "events.topic",
		Description: "Kafka topic for memory events",
	},
}

// EngineFlagKeys lists every key of EngineFlags.
var EngineFlagKeys = []string{
	FlagSQLite,
	FlagMemoryRoot,
	FlagVector,
	FlagEmbeddingProv,
	FlagEmbeddingTgt,
	FlagEmbeddingModel,
	FlagEmbeddingDims,
}

// AddEngineFlags registers every engine flag on cmd.
func AddEngineFlags(cmd *cobra.Command, t *EngineFlagValues) {
	AddStringFlag(cmd, EngineFlags, FlagSQLite, &t.SQLitePath)
	AddStringFlag(cmd, EngineFlags, FlagMemoryRoot, &t.MemoryRoot)
	AddBoolFlag(cmd, EngineFlags, FlagVector, &t.Vector)
	AddStringFlag(cmd, EngineFlags, FlagEmbeddingProv, &t.EmbeddingProvider)
	AddStringFlag(cmd, EngineFlags, FlagEmbeddingTgt, &t.EmbeddingTarget)
	AddStringFlag(cmd, EngineFlags, FlagEmbeddingModel, &t.EmbeddingModel)
	AddUintFlag(cmd, EngineFlags, FlagEmbeddingDims, &t.EmbeddingDimensions)
}

// EngineFlagValues receives parsed engine flags. Commands read resolved
// values from viper; these fields only back the cobra flags.
type EngineFlagValues struct {
	SQLitePath          string
	MemoryRoot          string
	Vector              bool
	EmbeddingProvider   string
	EmbeddingTarget     string
	EmbeddingModel      string
	EmbeddingDimensions uint
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	return defaults().GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	return defaults().GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	return defaults().GetBool(viperKey)
}
