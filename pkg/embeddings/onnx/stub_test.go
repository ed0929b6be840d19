//go:build !onnx

package onnx

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/memory"
)

var _ = Describe("Embedder without onnx support", func() {
	It("reports the model unavailable", func() {
		e := &Embedder{}
		_, err := e.Embed(context.Background(), "memory search")
		Expect(err).To(MatchError(memory.ErrModelUnavailable))
		Expect(e.Close()).To(Succeed())
	})
})
