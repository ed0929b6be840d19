package triggers_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/triggers"
)

var _ = Describe("Extractor", func() {
	var extractor *triggers.Extractor

	BeforeEach(func() {
		extractor = triggers.NewExtractor(0)
	})

	It("defaults to four phrases", func() {
		Expect(extractor.MaxPhrases).To(Equal(triggers.DefaultMaxPhrases))
	})

	It("returns nothing for text without content words", func() {
		Expect(extractor.Extract("")).To(BeEmpty())
		Expect(extractor.Extract("it is what it is, and so on")).To(BeEmpty())
	})

	It("prefers repeated multi-word phrases", func() {
		text := `We tuned the connection pool today. The connection pool was exhausted
under load, so the connection pool size is now 20. Postgres stayed healthy.`

		phrases := extractor.Extract(text)
		Expect(phrases).NotTo(BeEmpty())
		Expect(phrases[0]).To(Equal("connection pool"))
	})

	It("never spans stopwords or punctuation", func() {
		phrases := triggers.NewExtractor(20).Extract("Rate limiting of uploads. Encryption keys rotate.")
		Expect(phrases).NotTo(ContainElement("limiting uploads"))
		Expect(phrases).NotTo(ContainElement("uploads encryption"))
	})

	It("drops phrases contained in a better phrase", func() {
		phrases := extractor.Extract("redis cache invalidation, redis cache invalidation, redis cache invalidation")
		Expect(phrases).To(Equal([]string{"redis cache invalidation"}))
	})

	It("ignores anchor markers", func() {
		phrases := triggers.NewExtractor(10).Extract("<!-- ANCHOR:decisions -->\nOAuth callback handling\n<!-- /ANCHOR:decisions -->")
		for _, p := range phrases {
			Expect(p).NotTo(ContainSubstring("anchor"))
			Expect(p).NotTo(ContainSubstring("decisions"))
		}
		Expect(phrases).To(ContainElement("oauth callback handling"))
	})

	It("is deterministic", func() {
		text := "Structured logging with slog handlers; log levels per component; slog handlers everywhere."
		first := extractor.Extract(text)
		for range 10 {
			Expect(extractor.Extract(text)).To(Equal(first))
		}
	})

	It("respects MaxPhrases", func() {
		text := "alpha bravo. charlie delta. echo foxtrot. golf hotel. india juliet. kilo lima."
		Expect(triggers.NewExtractor(2).Extract(text)).To(HaveLen(2))
	})
})
