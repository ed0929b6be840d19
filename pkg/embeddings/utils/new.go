// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"
	"time"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/embeddings/ollama"
	"github.com/papercomputeco/recall/pkg/embeddings/onnx"
)

const (
	ProviderOllama = "ollama"
	ProviderONNX   = "onnx"
)

type NewEmbedderOpts struct {
	ProviderType string

	// TargetURL and Model configure the ollama provider.
	TargetURL string
	Model     string
	Timeout   time.Duration

	// ModelPath, TokenizerPath and SharedLibraryPath configure the onnx
	// provider.
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string

	Dimensions uint
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case ProviderOllama, "":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			Timeout: o.Timeout,
		})
	case ProviderONNX:
		return onnx.New(onnx.Config{
			ModelPath:         o.ModelPath,
			TokenizerPath:     o.TokenizerPath,
			SharedLibraryPath: o.SharedLibraryPath,
			Dimensions:        int(o.Dimensions),
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
