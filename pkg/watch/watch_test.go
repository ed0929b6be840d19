package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/watch"
)

type counter struct {
	n atomic.Int64
}

func (c *counter) InvalidateTriggers() { c.n.Add(1) }

func (c *counter) count() int64 { return c.n.Load() }

var _ = Describe("Watcher", func() {
	var (
		dir    string
		target *counter
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		target = &counter{}
		Expect(os.MkdirAll(filepath.Join(dir, "specs", "001"), 0o755)).To(Succeed())

		w, err := watch.New(watch.Config{Root: dir, Debounce: 20 * time.Millisecond}, target)
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("validates its configuration", func() {
		_, err := watch.New(watch.Config{}, target)
		Expect(err).To(MatchError("watch root is required"))
		_, err = watch.New(watch.Config{Root: dir}, nil)
		Expect(err).To(MatchError("invalidator is required"))
	})

	It("invalidates once for a burst of markdown writes", func() {
		path := filepath.Join(dir, "specs", "001", "notes.md")
		for i := range 5 {
			Expect(os.WriteFile(path, []byte{byte('a' + i)}, 0o600)).To(Succeed())
		}

		Eventually(target.count).Should(BeNumerically(">=", 1))
		Consistently(target.count, 100*time.Millisecond).Should(BeNumerically("<=", 2))
	})

	It("ignores files with other extensions", func() {
		Expect(os.WriteFile(filepath.Join(dir, "specs", "001", "scratch.txt"), []byte("x"), 0o600)).To(Succeed())
		Consistently(target.count, 150*time.Millisecond).Should(BeZero())
	})

	It("watches directories created after start", func() {
		sub := filepath.Join(dir, "specs", "002")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())

		Eventually(func() int64 {
			_ = os.WriteFile(filepath.Join(sub, "late.md"), []byte("x"), 0o600)
			return target.count()
		}).Should(BeNumerically(">=", 1))
	})
})
