package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/anchor"
	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	"github.com/papercomputeco/recall/pkg/triggers"
	"github.com/papercomputeco/recall/pkg/vector"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var fixture = []engine.SaveRequest{
	{Title: "Database Configuration", TriggerPhrases: []string{"database configuration", "connection pool", "postgres settings"}},
	{Title: "Rate Limiting Guidelines", TriggerPhrases: []string{"rate limiting", "throttle requests", "api quota"}},
	{Title: "Encryption Standards", TriggerPhrases: []string{"encryption", "aes keys", "tls certificates"}},
	{Title: "Authentication Flow", TriggerPhrases: []string{"oauth callback", "jwt refresh", "login session"}},
	{Title: "Caching Strategy", TriggerPhrases: []string{"redis cache", "cache invalidation", "ttl expiry"}},
	{Title: "Deployment Pipeline", TriggerPhrases: []string{"ci pipeline", "docker build", "release tagging"}},
	{Title: "Error Handling", TriggerPhrases: []string{"error wrapping", "retry backoff", "panic recovery"}},
	{Title: "Logging Practices", TriggerPhrases: []string{"structured logging", "log levels", "slog handler"}},
}

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		dir       string
		embedder  *testutils.MockEmbedder
		publisher *testutils.RecordingPublisher
		flaky     *testutils.FlakyStore
		eng       *engine.Engine
	)

	newEngine := func(store storage.VectorStore, mut ...func(*engine.Config)) *engine.Engine {
		provider, err := embeddings.NewProvider(embedder, embeddings.ProviderConfig{Dimensions: 3}, nil)
		Expect(err).NotTo(HaveOccurred())

		c := engine.Config{
			Store:       store,
			Generator:   provider,
			Publisher:   publisher,
			Files:       memory.Files{Root: dir},
			MaxAttempts: 3,
			Logger:      logger.Nop(),
		}
		for _, m := range mut {
			m(&c)
		}
		e, err := engine.New(c)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	write := func(name, content string) string {
		Expect(os.MkdirAll(filepath.Join(dir, filepath.Dir(name)), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600)).To(Succeed())
		return name
	}

	save := func(req engine.SaveRequest) *memory.Record {
		if req.SpecFolder == "" {
			req.SpecFolder = "specs/001"
		}
		if req.FilePath == "" {
			req.FilePath = req.SpecFolder + "/" + req.Title + ".md"
		}
		rec, err := eng.Save(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		return rec
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		embedder = testutils.NewVocabularyEmbedder("database", "oauth", "cache")
		publisher = testutils.NewRecordingPublisher()
		flaky = testutils.NewFlakyStore(inmemory.NewDriver(inmemory.Config{Dimensions: 3}))
		eng = newEngine(flaky)
	})

	AfterEach(func() {
		Expect(eng.Close()).To(Succeed())
	})

	Describe("New", func() {
		It("requires a store and a generator", func() {
			_, err := engine.New(engine.Config{})
			Expect(err).To(MatchError("store is required"))
			_, err = engine.New(engine.Config{Store: inmemory.NewDriver(inmemory.Config{Dimensions: 3})})
			Expect(err).To(MatchError("embedding generator is required"))
		})
	})

	Describe("Save", func() {
		It("rejects a request without spec folder or file path", func() {
			_, err := eng.Save(ctx, engine.SaveRequest{FilePath: "a.md"})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
			_, err = eng.Save(ctx, engine.SaveRequest{SpecFolder: "specs/001"})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
		})

		It("refuses file paths outside the memory root", func() {
			Expect(os.WriteFile(filepath.Join(filepath.Dir(dir), "outside.md"), []byte("secret"), 0o600)).To(Succeed())

			for _, p := range []string{"../outside.md", filepath.Join(filepath.Dir(dir), "outside.md")} {
				_, err := eng.Save(ctx, engine.SaveRequest{SpecFolder: "specs/001", FilePath: p})
				Expect(err).To(MatchError(memory.ErrInvalidArgument), p)
			}
			st, err := eng.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Store.Total).To(Equal(0))
		})

		It("extracts trigger phrases from the file and embeds the record", func() {
			path := write("specs/001/memory/pool.md", "Connection pool sizing for the database. Connection pool limits matter.")

			rec := save(engine.SaveRequest{FilePath: path})
			Expect(rec.ID).To(BeNumerically(">", 0))
			Expect(rec.Title).To(Equal("pool"))
			Expect(rec.TriggerPhrases).To(ContainElement("connection pool"))
			Expect(rec.ImportanceWeight).To(Equal(memory.DefaultImportanceWeight))
			Expect(rec.Status).To(Equal(memory.StatusCompleted))

			Expect(publisher.Types()).To(Equal([]string{
				eventstream.EventTypeMemoryIndexed,
				eventstream.EventTypeMemoryEmbedded,
			}))
			Expect(embedder.Texts()[0]).To(ContainSubstring("Connection pool sizing"))
		})

		It("keeps the record pending when the model is unavailable", func() {
			embedder.SetUnavailable(true)

			rec := save(engine.SaveRequest{Title: "Cache Layer", TriggerPhrases: []string{"cache warmup"}})
			Expect(rec.EmbeddingState).To(Equal(memory.EmbeddingState{Status: memory.StatusPending, RetryCount: 1}))

			embedder.SetUnavailable(false)
			res, err := eng.RetryFailed(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Succeeded).To(Equal(1))

			stats, err := eng.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Store.Completed).To(Equal(1))
		})

		It("retries at most the configured batch per pass", func() {
			Expect(eng.Close()).To(Succeed())
			eng = newEngine(inmemory.NewDriver(inmemory.Config{Dimensions: 3}), func(c *engine.Config) {
				c.RetryBatchSize = 2
			})

			embedder.SetUnavailable(true)
			for _, title := range []string{"Cache Layer", "Cache Warmup", "Cache Eviction"} {
				save(engine.SaveRequest{Title: title, TriggerPhrases: []string{"cache"}})
			}
			embedder.SetUnavailable(false)

			res, err := eng.RetryFailed(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Retried).To(Equal(2))
			Expect(res.Succeeded).To(Equal(2))

			res, err = eng.RetryFailed(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Retried).To(Equal(1))
		})

		It("makes new phrases matchable immediately", func() {
			Expect(eng.MatchTriggers(ctx, "redis cache", 3)).To(BeEmpty())

			save(engine.SaveRequest{Title: "Caching Strategy", TriggerPhrases: []string{"Redis Cache", "redis cache", " "}})

			matches := eng.MatchTriggers(ctx, "what about the redis cache?", 3)
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].MatchedPhrases).To(Equal([]string{"redis cache"}))
		})
	})

	Describe("MatchTriggers", func() {
		BeforeEach(func() {
			for _, req := range fixture {
				save(req)
			}
		})

		It("ranks the database memory first for a natural question", func() {
			matches := eng.MatchTriggers(ctx, "How do I configure the database?", triggers.DefaultMatchLimit)
			Expect(matches).NotTo(BeEmpty())
			Expect(matches[0].Title).To(Equal("Database Configuration"))
			Expect(matches[0].MatchedPhrases).To(ContainElement("database configuration"))
		})

		It("returns exactly one memory for rate limiting", func() {
			matches := eng.MatchTriggers(ctx, "rate limiting", triggers.DefaultMatchLimit)
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].Title).To(Equal("Rate Limiting Guidelines"))
		})

		It("never returns more than the limit", func() {
			prompt := "encryption with redis cache, docker build and structured logging"
			for n := range 5 {
				Expect(len(eng.MatchTriggers(ctx, prompt, n))).To(BeNumerically("<=", n))
			}
		})

		It("serves the cached phrases while the store is unavailable", func() {
			Expect(eng.WarmTriggers(ctx)).To(Succeed())
			flaky.SetFail(true)

			matches := eng.MatchTriggers(ctx, "rate limiting", 3)
			Expect(matches).To(HaveLen(1))
		})
	})

	Describe("Search", func() {
		var pooling, cacheLayer, oauth *memory.Record

		BeforeEach(func() {
			pooling = save(engine.SaveRequest{Title: "Database Pooling", TriggerPhrases: []string{"database pool"}, Content: "database tuning"})
			cacheLayer = save(engine.SaveRequest{Title: "Cache Layer", TriggerPhrases: []string{"cache warmup"}, Content: "cache in front of the database"})
			oauth = save(engine.SaveRequest{Title: "OAuth Flow", TriggerPhrases: []string{"oauth callback"}, Content: "oauth tokens"})
		})

		It("ranks memories by similarity", func() {
			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "database"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeFalse())
			Expect(resp.Results).To(HaveLen(3))
			Expect(resp.Results[0].ID).To(Equal(pooling.ID))
			Expect(resp.Results[0].Similarity).To(BeNumerically("~", 1, 1e-4))
			Expect(resp.Results[1].ID).To(Equal(cacheLayer.ID))
			Expect(resp.Results[2].ID).To(Equal(oauth.ID))
			Expect(resp.Results[0].TriggerPhrases).To(Equal([]string{"database pool"}))
			Expect(resp.Results[0].CreatedAt).NotTo(BeZero())
		})

		It("honors the limit", func() {
			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "database", Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(HaveLen(1))
		})

		It("requires every concept to meet the floor", func() {
			floor := float32(0.3)
			resp, err := eng.Search(ctx, engine.SearchRequest{Concepts: []string{"database", "cache"}, MinSimilarity: &floor})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].ID).To(Equal(cacheLayer.ID))
			Expect(resp.Results[0].ConceptSimilarities).To(HaveLen(2))
			for _, s := range resp.Results[0].ConceptSimilarities {
				Expect(s).To(BeNumerically(">=", floor))
			}
		})

		It("rejects invalid requests", func() {
			_, err := eng.Search(ctx, engine.SearchRequest{})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
			_, err = eng.Search(ctx, engine.SearchRequest{Concepts: []string{"database"}})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
			_, err = eng.Search(ctx, engine.SearchRequest{Concepts: []string{"a", "b", "c", "d", "e", "f"}})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
			_, err = eng.Search(ctx, engine.SearchRequest{Concepts: []string{"a", " "}})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
		})

		It("answers from trigger phrases when the model is unavailable", func() {
			embedder.SetUnavailable(true)

			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "how do we size the database pool?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeTrue())
			Expect(resp.Reason).To(Equal(engine.ReasonModelUnavailable))
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].ID).To(Equal(pooling.ID))
			Expect(resp.Results[0].Similarity).To(BeNumerically("~", 1, 1e-6))
		})

		It("degrades instead of failing when the store is unavailable, then recovers", func() {
			Expect(eng.WarmTriggers(ctx)).To(Succeed())
			flaky.SetFail(true)

			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "oauth callback"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeTrue())
			Expect(resp.Reason).To(Equal(vector.ReasonStoreUnavailable))
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].ID).To(Equal(oauth.ID))

			flaky.SetFail(false)
			resp, err = eng.Search(ctx, engine.SearchRequest{Query: "oauth callback"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeFalse())
			Expect(resp.Results[0].ID).To(Equal(oauth.ID))
		})
	})

	Describe("Load", func() {
		const notes = "# Auth notes\n\n" +
			"<!-- ANCHOR:decisions -->\nUse short-lived JWTs.\n<!-- /ANCHOR:decisions -->\n\n" +
			"<!-- ANCHOR:next-steps -->\nRotate keys.\n<!-- /ANCHOR:next-steps -->\n"

		var rec *memory.Record

		BeforeEach(func() {
			path := write("specs/002/memory/auth.md", notes)
			rec = save(engine.SaveRequest{SpecFolder: "specs/002", FilePath: path, Title: "Auth Notes"})
		})

		It("loads the whole file by id", func() {
			res, err := eng.Load(ctx, engine.LoadRequest{MemoryID: rec.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ID).To(Equal(rec.ID))
			Expect(res.Title).To(Equal("Auth Notes"))
			Expect(res.Content).To(Equal(notes))
			Expect(res.Anchor).To(BeEmpty())
		})

		It("loads an anchored section of the latest memory in a folder", func() {
			res, err := eng.Load(ctx, engine.LoadRequest{SpecFolder: "specs/002", AnchorID: "Decisions"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ID).To(Equal(rec.ID))
			Expect(res.Anchor).To(Equal("Decisions"))
			Expect(res.Content).To(Equal("Use short-lived JWTs."))
		})

		It("prefers the memory saved for the anchor", func() {
			other := write("specs/002/memory/other.md", anchor.Wrap("summary", "Other file."))
			anchored := save(engine.SaveRequest{SpecFolder: "specs/002", FilePath: other, AnchorID: "summary"})
			save(engine.SaveRequest{SpecFolder: "specs/002", FilePath: "specs/002/memory/auth.md", Title: "Auth Again"})

			res, err := eng.Load(ctx, engine.LoadRequest{SpecFolder: "specs/002", AnchorID: "summary"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ID).To(Equal(anchored.ID))
			Expect(res.Content).To(Equal("Other file."))
		})

		It("reports a missing anchor as not found", func() {
			_, err := eng.Load(ctx, engine.LoadRequest{SpecFolder: "specs/002", AnchorID: "missing"})
			Expect(memory.IsNotFound(err)).To(BeTrue())
			Expect(err.Error()).To(Equal(`anchor "missing" not found in spec folder "specs/002" (available: decisions, next-steps)`))

			var nf memory.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.Anchors).To(Equal([]string{"decisions", "next-steps"}))

			_, err = eng.Load(ctx, engine.LoadRequest{MemoryID: rec.ID, AnchorID: "missing"})
			Expect(memory.IsNotFound(err)).To(BeTrue())
		})

		It("reports missing records as not found", func() {
			_, err := eng.Load(ctx, engine.LoadRequest{MemoryID: 999})
			Expect(memory.IsNotFound(err)).To(BeTrue())
			_, err = eng.Load(ctx, engine.LoadRequest{SpecFolder: "specs/404"})
			Expect(memory.IsNotFound(err)).To(BeTrue())
		})

		It("requires exactly one of spec folder and memory id", func() {
			_, err := eng.Load(ctx, engine.LoadRequest{})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
			_, err = eng.Load(ctx, engine.LoadRequest{SpecFolder: "specs/002", MemoryID: rec.ID})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))
		})
	})

	Describe("Delete", func() {
		It("removes the memory from every retrieval mode", func() {
			rec := save(engine.SaveRequest{Title: "Database Pooling", TriggerPhrases: []string{"database pool"}})
			Expect(eng.MatchTriggers(ctx, "database pool", 3)).To(HaveLen(1))

			Expect(eng.Delete(ctx, rec.ID)).To(Succeed())

			Expect(eng.MatchTriggers(ctx, "database pool", 3)).To(BeEmpty())
			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "database"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(BeEmpty())
			_, err = eng.Load(ctx, engine.LoadRequest{MemoryID: rec.ID})
			Expect(memory.IsNotFound(err)).To(BeTrue())

			Expect(publisher.Types()).To(ContainElement(eventstream.EventTypeMemoryDeleted))
			Expect(memory.IsNotFound(eng.Delete(ctx, rec.ID))).To(BeTrue())
		})
	})

	Context("without vector capability", func() {
		BeforeEach(func() {
			Expect(eng.Close()).To(Succeed())
			eng = newEngine(inmemory.NewDriver(inmemory.Config{Dimensions: 3, DisableVector: true}))
		})

		It("stores records without embedding and answers from trigger phrases", func() {
			Expect(eng.Degraded()).To(BeTrue())

			rec := save(engine.SaveRequest{Title: "Database Pooling", TriggerPhrases: []string{"database pool", "pool sizing"}})
			Expect(rec.Status).To(Equal(memory.StatusFailed))
			Expect(rec.RetryCount).To(Equal(0))
			Expect(embedder.Calls()).To(Equal(0))

			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "database pool"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeTrue())
			Expect(resp.Reason).To(Equal(vector.ReasonCapabilityUnavailable))
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Similarity).To(BeNumerically("~", 0.5, 1e-6))

			_, err = eng.Search(ctx, engine.SearchRequest{Concepts: []string{"database"}})
			Expect(err).To(MatchError(memory.ErrInvalidArgument))

			res, err := eng.RetryFailed(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Retried).To(Equal(0))
		})
	})

	Context("with asynchronous embedding", func() {
		It("embeds saved records on the pool before Close returns", func() {
			Expect(eng.Close()).To(Succeed())
			eng = newEngine(inmemory.NewDriver(inmemory.Config{Dimensions: 3}), func(c *engine.Config) {
				c.Async = true
			})

			rec := save(engine.SaveRequest{Title: "Cache Layer", TriggerPhrases: []string{"cache warmup"}})
			Expect(rec.Status).To(Equal(memory.StatusPending))

			Expect(eng.Close()).To(Succeed())
			Expect(publisher.Types()).To(ContainElement(eventstream.EventTypeMemoryEmbedded))

			eng = newEngine(inmemory.NewDriver(inmemory.Config{Dimensions: 3}))
		})
	})

	Context("on sqlite", func() {
		It("round trips save, search and load", func() {
			Expect(eng.Close()).To(Succeed())
			store, err := sqlite.NewDriver(sqlite.Config{DBPath: sqlite.MemoryPath, Dimensions: 3}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			eng = newEngine(store)

			path := write("specs/003/memory/db.md", "database settings")
			rec := save(engine.SaveRequest{SpecFolder: "specs/003", FilePath: path, Title: "Database Settings"})
			Expect(rec.Status).To(Equal(memory.StatusCompleted))

			resp, err := eng.Search(ctx, engine.SearchRequest{Query: "database", SpecFolder: "specs/003"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Similarity).To(BeNumerically("~", 1, 1e-4))

			res, err := eng.Load(ctx, engine.LoadRequest{SpecFolder: "specs/003"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).To(Equal("database settings"))
		})
	})
})
