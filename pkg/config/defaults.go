package config

const (
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingMaxChars   = 2000
	defaultSlowThreshold       = "500ms"

	defaultCacheTTL   = "60s"
	defaultMaxPhrases = 4

	defaultMaxAttempts = 5

	defaultAPIListen = ":8082"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "recall.memory"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Vector: VectorConfig{
			Enabled: true,
		},
		Embedding: EmbeddingConfig{
			Provider:      defaultEmbeddingProvider,
			Target:        defaultEmbeddingTarget,
			Model:         defaultEmbeddingModel,
			Dimensions:    defaultEmbeddingDimensions,
			MaxChars:      defaultEmbeddingMaxChars,
			SlowThreshold: defaultSlowThreshold,
		},
		Triggers: TriggersConfig{
			CacheTTL:   defaultCacheTTL,
			MaxPhrases: defaultMaxPhrases,
		},
		Retry: RetryConfig{
			MaxAttempts: defaultMaxAttempts,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
