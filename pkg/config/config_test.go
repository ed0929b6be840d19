package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	load := func() (*config.Config, error) {
		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		return c.LoadConfig()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
			Expect(cfg.Vector.Enabled).To(BeTrue())
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
			Expect(cfg.Triggers.CacheTTL).To(Equal("60s"))
			Expect(cfg.Retry.MaxAttempts).To(Equal(5))
		})

		It("loads every section and keeps defaults for missing fields", func() {
			writeConfig(`version = 0

[storage]
sqlite_path = "/tmp/recall.sqlite"
memory_root = "/srv/notes"

[vector]
enabled = false

[embedding]
provider = "onnx"
dimensions = 384
model_path = "/models/minilm.onnx"

[triggers]
cache_ttl = "5m"

[retry]
max_attempts = 3
rate_per_second = 2.5
interval = "10m"
batch_size = 50

[api]
listen = ":9000"

[events]
provider = "kafka"
brokers = ["localhost:9092", "localhost:9093"]
`)

			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.SQLitePath).To(Equal("/tmp/recall.sqlite"))
			Expect(cfg.Storage.MemoryRoot).To(Equal("/srv/notes"))
			Expect(cfg.Vector.Enabled).To(BeFalse())
			Expect(cfg.Embedding.Provider).To(Equal("onnx"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(384)))
			Expect(cfg.Embedding.ModelPath).To(Equal("/models/minilm.onnx"))
			Expect(cfg.Triggers.CacheTTL).To(Equal("5m"))
			Expect(cfg.Retry.MaxAttempts).To(Equal(3))
			Expect(cfg.Retry.RatePerSecond).To(Equal(2.5))
			Expect(cfg.Retry.Interval).To(Equal("10m"))
			Expect(cfg.Retry.BatchSize).To(Equal(50))
			Expect(cfg.API.Listen).To(Equal(":9000"))
			Expect(cfg.Events.Provider).To(Equal("kafka"))
			Expect(cfg.Events.Brokers).To(Equal([]string{"localhost:9092", "localhost:9093"}))

			defaults := config.NewDefaultConfig()
			Expect(cfg.Embedding.Target).To(Equal(defaults.Embedding.Target))
			Expect(cfg.Triggers.MaxPhrases).To(Equal(defaults.Triggers.MaxPhrases))
			Expect(cfg.Events.Topic).To(Equal(defaults.Events.Topic))
		})

		It("returns error for malformed TOML", func() {
			writeConfig("this is not [valid toml")
			_, err := load()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 99\n")
			_, err := load()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 99")))
		})

		It("returns error for an invalid duration", func() {
			writeConfig("[triggers]\ncache_ttl = \"soon\"\n")
			_, err := load()
			Expect(err).To(MatchError(ContainSubstring("invalid value for triggers.cache_ttl")))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.API.Listen = ":7000"
			cfg.Events.Brokers = []string{"broker:9092"}
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("round trips a key",
			func(key, value string) {
				Expect(c.SetConfigValue(key, value)).To(Succeed())
				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(value))
			},
			Entry("string", "storage.sqlite_path", "/data/recall.sqlite"),
			Entry("bool", "vector.enabled", "false"),
			Entry("uint", "embedding.dimensions", "384"),
			Entry("int", "retry.max_attempts", "7"),
			Entry("batch size", "retry.batch_size", "25"),
			Entry("float", "retry.rate_per_second", "0.5"),
			Entry("duration", "triggers.cache_ttl", "2m0s"),
			Entry("list", "events.brokers", "a:9092,b:9092"),
		)

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("api.listen", ":9999")).To(Succeed())
			Expect(c.SetConfigValue("embedding.model", "bge-small")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.API.Listen).To(Equal(":9999"))
			Expect(cfg.Embedding.Model).To(Equal("bge-small"))
		})

		It("rejects unknown keys and invalid values", func() {
			Expect(c.SetConfigValue("proxy.listen", ":1")).To(MatchError(`unknown config key: "proxy.listen"`))
			_, err := c.GetConfigValue("proxy.listen")
			Expect(err).To(HaveOccurred())

			Expect(c.SetConfigValue("embedding.dimensions", "lots")).To(MatchError(ContainSubstring("invalid value for embedding.dimensions")))
			Expect(c.SetConfigValue("retry.interval", "often")).To(MatchError(ContainSubstring("invalid value for retry.interval")))
			Expect(c.SetConfigValue("vector.enabled", "maybe")).To(HaveOccurred())
		})

		It("returns the default when no config file exists", func() {
			got, err := c.GetConfigValue("embedding.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(config.NewDefaultConfig().Embedding.Model))

			got, err = c.GetConfigValue("storage.sqlite_path")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("lists every key once, starting with storage", func() {
			keys := config.ValidConfigKeys()
			Expect(keys[0]).To(Equal("storage.sqlite_path"))
			Expect(keys).To(ContainElements("vector.enabled", "triggers.cache_ttl", "retry.interval", "events.topic"))

			seen := map[string]bool{}
			for _, k := range keys {
				Expect(seen[k]).To(BeFalse(), k)
				seen[k] = true
				Expect(config.IsValidConfigKey(k)).To(BeTrue())
			}
			Expect(config.IsValidConfigKey("memory.enabled")).To(BeFalse())
		})
	})

	Describe("PresetConfig", func() {
		It("builds the onnx preset", func() {
			cfg, err := config.PresetConfig("ONNX")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Embedding.Provider).To(Equal("onnx"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(384)))
		})

		It("disables vectors for the keyword preset", func() {
			cfg, err := config.PresetConfig("keyword")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Vector.Enabled).To(BeFalse())
		})

		It("rejects unknown presets", func() {
			_, err := config.PresetConfig("openai")
			Expect(err).To(MatchError(ContainSubstring("available: ollama, onnx, keyword")))
		})
	})

	Describe("ParseDuration", func() {
		It("treats empty as zero", func() {
			d, err := config.ParseDuration("retry.interval", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(BeZero())

			d, err = config.ParseDuration("retry.interval", "90s")
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(90 * time.Second))
		})
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		Expect(v.GetBool("vector.enabled")).To(BeTrue())
		Expect(v.GetUint("embedding.dimensions")).To(Equal(defaults.Embedding.Dimensions))
		Expect(v.GetDuration("triggers.cache_ttl")).To(Equal(time.Minute))
	})

	It("reads config file values and keeps defaults for unset fields", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":9100\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("api.listen")).To(Equal(":9100"))
		Expect(v.GetString("embedding.provider")).To(Equal("ollama"))
	})

	It("env vars take precedence over config file values", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":9100\"\n"), 0o600)).To(Succeed())
		GinkgoT().Setenv("RECALL_API_LISTEN", ":9200")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("api.listen")).To(Equal(":9200"))
	})
})

var _ = Describe("BindRegisteredFlags", func() {
	It("lets an explicitly set flag override env and file", func() {
		tmpDir := GinkgoT().TempDir()
		GinkgoT().Setenv("RECALL_STORAGE_SQLITE_PATH", "/env/recall.sqlite")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var values config.EngineFlagValues
		config.AddEngineFlags(cmd, &values)
		Expect(cmd.Flags().Set("sqlite", "/flag/recall.sqlite")).To(Succeed())
		Expect(cmd.Flags().Set("vector", "false")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.EngineFlags, config.EngineFlagKeys)
		Expect(v.GetString("storage.sqlite_path")).To(Equal("/flag/recall.sqlite"))
		Expect(v.GetBool("vector.enabled")).To(BeFalse())
	})

	It("falls back to env when the flag is not set", func() {
		tmpDir := GinkgoT().TempDir()
		GinkgoT().Setenv("RECALL_EMBEDDING_MODEL", "bge-small")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var values config.EngineFlagValues
		config.AddEngineFlags(cmd, &values)
		config.BindRegisteredFlags(v, cmd, config.EngineFlags, config.EngineFlagKeys)

		Expect(v.GetString("embedding.model")).To(Equal("bge-small"))
		Expect(values.EmbeddingModel).To(Equal(config.NewDefaultConfig().Embedding.Model))
	})
})
