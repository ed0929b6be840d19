package vector_test

import (
	"bytes"
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
	"github.com/papercomputeco/recall/pkg/vector"
)

var _ = Describe("NewIndex", func() {
	It("logs the capability decision once", func() {
		var buf bytes.Buffer
		store := inmemory.NewDriver(inmemory.Config{DisableVector: true})
		idx := vector.NewIndex(store, logger.New(logger.WithWriter(&buf)))

		for range 3 {
			_, err := idx.VectorSearch(context.Background(), []float32{1}, vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(strings.Count(buf.String(), "trigger-only mode")).To(Equal(1))
	})
})

var _ = Describe("VectorBackedIndex", func() {
	var (
		ctx   context.Context
		store *sqlite.Driver
		flaky *testutils.FlakyStore
		idx   vector.Index
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = sqlite.NewDriver(sqlite.Config{DBPath: sqlite.MemoryPath, Dimensions: 3}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		flaky = testutils.NewFlakyStore(store)
		idx = vector.NewIndex(flaky, logger.Nop())
		Expect(idx.Degraded()).To(BeFalse())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	index := func(folder string, emb []float32) int64 {
		id, err := idx.IndexMemory(ctx, &memory.Record{SpecFolder: folder, FilePath: folder + ".md", Title: folder}, emb)
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	Describe("IndexMemory", func() {
		It("leaves records without an embedding pending", func() {
			id := index("a", nil)
			rec, err := idx.GetMemory(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(memory.StatusPending))
		})
	})

	Describe("VectorSearch", func() {
		It("orders by similarity and applies the default limit", func() {
			for range 12 {
				index("bulk", []float32{0, 0, 1})
			}
			best := index("best", []float32{1, 0, 0})

			resp, err := idx.VectorSearch(ctx, []float32{1, 0, 0}, vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeFalse())
			Expect(resp.Results).To(HaveLen(vector.DefaultLimit))
			Expect(resp.Results[0].Record.ID).To(Equal(best))
		})

		It("does not apply a similarity floor", func() {
			index("opposite", []float32{-1, 0, 0})
			resp, err := idx.VectorSearch(ctx, []float32{1, 0, 0}, vector.SearchOptions{Limit: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Similarity).To(BeNumerically("~", -1, 1e-5))
		})

		It("degrades while the store is unavailable and recovers after", func() {
			index("a", []float32{1, 0, 0})

			flaky.SetFail(true)
			resp, err := idx.VectorSearch(ctx, []float32{1, 0, 0}, vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeTrue())
			Expect(resp.Reason).To(Equal(vector.ReasonStoreUnavailable))
			Expect(resp.Results).To(BeEmpty())

			flaky.SetFail(false)
			resp, err = idx.VectorSearch(ctx, []float32{1, 0, 0}, vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeFalse())
			Expect(resp.Results).To(HaveLen(1))
		})

		It("degrades on a closed store", func() {
			Expect(store.Close()).To(Succeed())
			resp, err := idx.VectorSearch(ctx, []float32{1, 0, 0}, vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Degraded).To(BeTrue())
		})
	})

	Describe("MultiConceptSearch", func() {
		It("requires 2 to 5 concepts", func() {
			for _, n := range []int{0, 1, 6} {
				_, err := idx.MultiConceptSearch(ctx, make([][]float32, n), vector.MultiConceptOptions{})
				Expect(err).To(MatchError(memory.ErrInvalidArgument))
			}
		})

		It("requires every concept to meet the floor", func() {
			// strong on x only
			index("x", []float32{1, 0, 0})
			// moderate on both
			both := index("both", []float32{0.7071, 0.7071, 0})

			resp, err := idx.MultiConceptSearch(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}}, vector.MultiConceptOptions{
				MinSimilarity: 0.5,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Record.ID).To(Equal(both))
			Expect(resp.Results[0].ConceptSimilarities).To(HaveLen(2))
		})
	})

	Describe("GetMemory", func() {
		It("returns nil for unknown ids", func() {
			rec, err := idx.GetMemory(ctx, 404)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).To(BeNil())
		})
	})
})

var _ = Describe("KeywordOnlyIndex", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		idx   vector.Index
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver(inmemory.Config{Dimensions: 3, DisableVector: true})
		idx = vector.NewIndex(store, logger.Nop())
	})

	It("is degraded", func() {
		Expect(idx.Degraded()).To(BeTrue())
	})

	It("stores records as failed without spending retry budget", func() {
		id, err := idx.IndexMemory(ctx, &memory.Record{SpecFolder: "a", FilePath: "a.md"}, []float32{1, 0, 0})
		Expect(err).NotTo(HaveOccurred())

		rec, err := idx.GetMemory(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Status).To(Equal(memory.StatusFailed))
		Expect(rec.RetryCount).To(BeZero())
	})

	It("returns empty degraded responses", func() {
		resp, err := idx.VectorSearch(ctx, []float32{1, 0, 0}, vector.SearchOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Degraded).To(BeTrue())
		Expect(resp.Results).To(BeEmpty())

		resp, err = idx.MultiConceptSearch(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}}, vector.MultiConceptOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Degraded).To(BeTrue())
	})

	It("still validates concept counts", func() {
		_, err := idx.MultiConceptSearch(ctx, [][]float32{{1, 0, 0}}, vector.MultiConceptOptions{})
		Expect(err).To(MatchError(memory.ErrInvalidArgument))
	})
})
