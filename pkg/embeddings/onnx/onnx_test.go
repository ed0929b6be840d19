//go:build onnx

package onnx

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/memory"
)

var _ = Describe("Embedder", func() {
	It("reports the model unavailable once closed", func() {
		tok, err := NewTokenizer(map[string]int64{"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102})
		Expect(err).NotTo(HaveOccurred())

		e := &Embedder{tokenizer: tok, cfg: Config{MaxSequence: 8, Dimensions: 4}}
		Expect(e.Close()).To(Succeed())

		_, err = e.Embed(context.Background(), "memory search")
		Expect(err).To(MatchError(memory.ErrModelUnavailable))
	})
})
