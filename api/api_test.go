package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/engine"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/retry"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		dir      string
		embedder *testutils.MockEmbedder
		flaky    *testutils.FlakyStore
		eng      *engine.Engine
		server   *Server
	)

	do := func(method, path string, body any) (int, []byte) {
		var r io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			r = bytes.NewReader(b)
		}
		req := httptest.NewRequest(method, path, r)
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, out
	}

	save := func(in search.SaveInput) *memory.Record {
		status, body := do(http.MethodPost, "/memories", in)
		Expect(status).To(Equal(http.StatusCreated), string(body))
		var rec memory.Record
		Expect(json.Unmarshal(body, &rec)).To(Succeed())
		return &rec
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		embedder = testutils.NewVocabularyEmbedder("database", "oauth", "cache")
		flaky = testutils.NewFlakyStore(inmemory.NewDriver(inmemory.Config{Dimensions: 3}))

		provider, err := embeddings.NewProvider(embedder, embeddings.ProviderConfig{Dimensions: 3}, nil)
		Expect(err).NotTo(HaveOccurred())
		eng, err = engine.New(engine.Config{
			Store:     flaky,
			Generator: provider,
			Files:     memory.Files{Root: dir},
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server = NewServer(Config{ListenAddr: ":0"}, eng, nil, logger.Nop())
	})

	AfterEach(func() {
		Expect(eng.Close()).To(Succeed())
	})

	It("answers ping", func() {
		status, body := do(http.MethodGet, "/ping", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("memories", func() {
		It("saves, fetches and deletes a memory", func() {
			rec := save(search.SaveInput{
				SpecFolder:     "specs/001",
				FilePath:       "specs/001/db.md",
				Title:          "Database pooling",
				Content:        "database pool sizing",
				TriggerPhrases: []string{"Connection Pool"},
			})
			Expect(rec.ID).To(BeNumerically(">", 0))
			Expect(rec.TriggerPhrases).To(Equal([]string{"connection pool"}))
			Expect(rec.Status).To(Equal(memory.StatusCompleted))

			status, body := do(http.MethodGet, "/memories/1", nil)
			Expect(status).To(Equal(http.StatusOK))
			var got memory.Record
			Expect(json.Unmarshal(body, &got)).To(Succeed())
			Expect(got.Title).To(Equal("Database pooling"))

			status, _ = do(http.MethodDelete, "/memories/1", nil)
			Expect(status).To(Equal(http.StatusNoContent))

			status, body = do(http.MethodGet, "/memories/1", nil)
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(string(body)).To(ContainSubstring("memory not found"))
		})

		It("rejects a save without a spec folder", func() {
			status, body := do(http.MethodPost, "/memories", search.SaveInput{FilePath: "a.md", Content: "x"})
			Expect(status).To(Equal(http.StatusBadRequest))
			var errResp ErrorResponse
			Expect(json.Unmarshal(body, &errResp)).To(Succeed())
			Expect(errResp.Error).To(ContainSubstring("invalid argument"))
		})

		It("rejects file paths that leave the memory root", func() {
			status, body := do(http.MethodPost, "/memories", search.SaveInput{SpecFolder: "specs/001", FilePath: "../../etc/passwd"})
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("outside the memory root"))
		})

		It("rejects a malformed id", func() {
			status, _ := do(http.MethodGet, "/memories/abc", nil)
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("returns 503 when the store is down", func() {
			flaky.SetFail(true)
			status, _ := do(http.MethodPost, "/memories", search.SaveInput{
				SpecFolder: "specs/001", FilePath: "specs/001/x.md", Content: "x",
			})
			Expect(status).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("search", func() {
		BeforeEach(func() {
			save(search.SaveInput{SpecFolder: "specs/001", FilePath: "specs/001/db.md", Title: "Database pooling", Content: "database", TriggerPhrases: []string{"connection pool"}})
			save(search.SaveInput{SpecFolder: "specs/001", FilePath: "specs/001/auth.md", Title: "OAuth flow", Content: "oauth", TriggerPhrases: []string{"oauth callback"}})
		})

		It("returns ranked results", func() {
			status, body := do(http.MethodPost, "/search", search.SearchInput{Query: "database"})
			Expect(status).To(Equal(http.StatusOK))
			var out search.SearchOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Results).NotTo(BeEmpty())
			Expect(out.Results[0].Title).To(Equal("Database pooling"))
			Expect(out.Degraded).To(BeFalse())
		})

		It("returns 200 with the degraded flag when the model is down", func() {
			embedder.SetUnavailable(true)
			status, body := do(http.MethodPost, "/search", search.SearchInput{Query: "oauth callback"})
			Expect(status).To(Equal(http.StatusOK))
			var out search.SearchOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Degraded).To(BeTrue())
			Expect(out.Results).To(HaveLen(1))
		})

		It("returns 400 for a single concept", func() {
			status, _ := do(http.MethodPost, "/search", search.SearchInput{Concepts: []string{"database"}})
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString("{not json"))
			req.Header.Set("Content-Type", "application/json")
			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("load", func() {
		It("loads file content and maps missing anchors to 404", func() {
			Expect(os.MkdirAll(filepath.Join(dir, "specs", "002"), 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "specs", "002", "notes.md"), []byte("cache notes"), 0o600)).To(Succeed())
			save(search.SaveInput{SpecFolder: "specs/002", FilePath: "specs/002/notes.md"})

			status, body := do(http.MethodPost, "/load", search.LoadInput{SpecFolder: "specs/002"})
			Expect(status).To(Equal(http.StatusOK))
			var res engine.LoadResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Content).To(Equal("cache notes"))

			status, _ = do(http.MethodPost, "/load", search.LoadInput{SpecFolder: "specs/002", AnchorID: "missing"})
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("rejects ambiguous selectors", func() {
			status, _ := do(http.MethodPost, "/load", search.LoadInput{SpecFolder: "specs/002", MemoryID: 1})
			Expect(status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("triggers", func() {
		It("matches and defaults the limit", func() {
			for _, p := range []string{"cache warmup", "cache eviction", "cache sizing", "cache keys"} {
				save(search.SaveInput{SpecFolder: "specs/003", FilePath: "specs/003/" + p + ".md", Content: "x", TriggerPhrases: []string{p, "cache"}})
			}

			status, body := do(http.MethodPost, "/triggers/match", search.TriggersInput{Prompt: "the cache is cold"})
			Expect(status).To(Equal(http.StatusOK))
			var out search.TriggersOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(3))
		})

		It("answers an empty prompt with no matches", func() {
			save(search.SaveInput{SpecFolder: "specs/003", FilePath: "specs/003/a.md", Content: "x", TriggerPhrases: []string{"cache"}})

			status, body := do(http.MethodPost, "/triggers/match", search.TriggersInput{})
			Expect(status).To(Equal(http.StatusOK))
			var out search.TriggersOutput
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(0))
			Expect(out.Matches).To(BeEmpty())
		})
	})

	Describe("retry and stats", func() {
		It("embeds pending memories and reports counts", func() {
			embedder.SetUnavailable(true)
			rec := save(search.SaveInput{SpecFolder: "specs/004", FilePath: "specs/004/a.md", Content: "database"})
			Expect(rec.Status).To(Equal(memory.StatusPending))

			embedder.SetUnavailable(false)
			status, body := do(http.MethodPost, "/retry", nil)
			Expect(status).To(Equal(http.StatusOK))
			var res retry.Result
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Succeeded).To(Equal(1))

			status, body = do(http.MethodGet, "/stats", nil)
			Expect(status).To(Equal(http.StatusOK))
			var stats engine.Stats
			Expect(json.Unmarshal(body, &stats)).To(Succeed())
			Expect(stats.Store.Total).To(Equal(1))
			Expect(stats.Store.Completed).To(Equal(1))
		})
	})

	It("mounts the MCP handler", func() {
		mcpHit := false
		server = NewServer(Config{}, eng, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			mcpHit = true
			w.WriteHeader(http.StatusAccepted)
		}), logger.Nop())

		status, _ := do(http.MethodPost, "/mcp", map[string]string{})
		Expect(status).To(Equal(http.StatusAccepted))
		Expect(mcpHit).To(BeTrue())
	})
})
