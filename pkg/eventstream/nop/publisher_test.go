package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/memory"
)

var _ = Describe("Publisher", func() {
	var p *nop.Publisher

	BeforeEach(func() {
		p = nop.NewPublisher()
	})

	It("rejects nil events", func() {
		Expect(p.Publish(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.Discarded()).To(BeZero())
	})

	It("discards memory events", func() {
		rec := &memory.Record{ID: 7, SpecFolder: "specs/001", FilePath: "specs/001/a.md"}
		Expect(p.Publish(context.Background(), eventstream.NewMemoryEvent(eventstream.EventTypeMemoryIndexed, rec))).To(Succeed())
		Expect(p.Publish(context.Background(), eventstream.NewMemoryEvent(eventstream.EventTypeMemoryDeleted, rec))).To(Succeed())
		Expect(p.Discarded()).To(BeEquivalentTo(2))
	})

	It("closes cleanly", func() {
		Expect(p.Close()).To(Succeed())
	})
})
