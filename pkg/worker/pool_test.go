package worker_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/retry"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
	"github.com/papercomputeco/recall/pkg/worker"
)

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(embedder *testutils.MockEmbedder, queueSize uint) (*worker.Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver(inmemory.Config{Dimensions: 4})

	provider, err := embeddings.NewProvider(embedder, embeddings.ProviderConfig{Dimensions: 4}, nil)
	Expect(err).NotTo(HaveOccurred())

	wp, err := worker.NewPool(worker.Config{
		Attempter: &retry.Attempter{
			Store:       driver,
			Generator:   provider,
			MaxAttempts: 3,
		},
		NumWorkers: 1,
		QueueSize:  queueSize,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

var _ = Describe("Worker Pool", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
	)

	save := func(driver *inmemory.Driver, title string) *memory.Record {
		rec := &memory.Record{SpecFolder: "specs/001", FilePath: title + ".md", Title: title}
		_, err := driver.Insert(ctx, rec, nil)
		Expect(err).NotTo(HaveOccurred())
		return rec
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder(4)
	})

	It("requires an attempter", func() {
		_, err := worker.NewPool(worker.Config{})
		Expect(err).To(MatchError("attempter is required"))
	})

	It("embeds queued records before Close returns", func() {
		wp, driver := newTestPool(embedder, 0)
		a := save(driver, "a")
		b := save(driver, "b")

		Expect(wp.Enqueue(worker.Job{Record: a, Text: "a"})).To(BeTrue())
		Expect(wp.Enqueue(worker.Job{Record: b, Text: "b"})).To(BeTrue())
		wp.Close()

		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Completed).To(Equal(2))
		Expect(stats.Vectors).To(Equal(2))
	})

	It("leaves records pending when the model is unavailable", func() {
		embedder.SetUnavailable(true)
		wp, driver := newTestPool(embedder, 0)
		rec := save(driver, "a")

		Expect(wp.Enqueue(worker.Job{Record: rec, Text: "a"})).To(BeTrue())
		wp.Close()

		got, err := driver.Get(ctx, rec.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.EmbeddingState).To(Equal(memory.EmbeddingState{Status: memory.StatusPending, RetryCount: 1}))
	})

	It("drops jobs when the queue is full", func() {
		embedder.Delay = 200 * time.Millisecond
		wp, driver := newTestPool(embedder, 1)
		defer wp.Close()

		accepted := 0
		for _, title := range []string{"a", "b", "c", "d"} {
			if wp.Enqueue(worker.Job{Record: save(driver, title), Text: title}) {
				accepted++
			}
		}
		Expect(accepted).To(BeNumerically("<", 4))
	})

	It("rejects jobs after Close and tolerates a second Close", func() {
		wp, driver := newTestPool(embedder, 0)
		wp.Close()

		Expect(wp.Enqueue(worker.Job{Record: save(driver, "a"), Text: "a"})).To(BeFalse())
		Expect(wp.Close).NotTo(Panic())
	})
})
