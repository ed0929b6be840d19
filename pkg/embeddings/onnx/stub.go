//go:build !onnx

package onnx

import (
	"context"
	"fmt"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/memory"
)

// Embedder is unavailable in builds without the "onnx" tag.
type Embedder struct{}

var _ embeddings.Embedder = (*Embedder)(nil)

// New always fails: this binary was built without ONNX Runtime support.
func New(cfg Config) (*Embedder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: built without onnx support (rebuild with -tags onnx)", memory.ErrModelUnavailable)
}

func (e *Embedder) Embed(context.Context, string) ([]float32, error) {
	return nil, memory.ErrModelUnavailable
}

func (e *Embedder) Close() error { return nil }
