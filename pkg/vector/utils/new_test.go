package vectorutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	"github.com/papercomputeco/recall/pkg/vector"
	vectorutils "github.com/papercomputeco/recall/pkg/vector/utils"
)

var _ = Describe("NewIndex", func() {
	It("selects the vector-backed strategy for sqlite with sqlite-vec", func() {
		idx, store, err := vectorutils.NewIndex(&vectorutils.NewIndexOpts{
			DBPath:     sqlite.MemoryPath,
			Dimensions: 4,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()
		Expect(idx).To(BeAssignableToTypeOf(&vector.VectorBackedIndex{}))
	})

	It("selects the keyword-only strategy when vectors are disabled", func() {
		idx, store, err := vectorutils.NewIndex(&vectorutils.NewIndexOpts{
			ProviderType:  vectorutils.ProviderInMemory,
			Dimensions:    4,
			DisableVector: true,
		})
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()
		Expect(idx.Degraded()).To(BeTrue())
	})

	It("rejects unknown providers", func() {
		_, _, err := vectorutils.NewIndex(&vectorutils.NewIndexOpts{ProviderType: "qdrant"})
		Expect(err).To(MatchError(ContainSubstring("unsupported store provider")))
	})
})
