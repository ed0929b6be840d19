// Package onnx implements an in-process Embedder on ONNX Runtime for
// sentence-transformer models (BERT WordPiece vocabulary, mean pooling).
//
// The runtime binding requires cgo and the onnxruntime shared library, so it
// is only compiled with the "onnx" build tag. Without the tag New returns an
// error and the "ollama" provider should be used instead.
package onnx

import "errors"

const (
	// DefaultDimensions matches all-MiniLM-L6-v2.
	DefaultDimensions = 384

	// DefaultMaxSequence is the token window including [CLS] and [SEP].
	DefaultMaxSequence = 128
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the .onnx model file.
	ModelPath string

	// TokenizerPath is the path to the HuggingFace tokenizer.json file.
	TokenizerPath string

	// SharedLibraryPath optionally points at libonnxruntime. When empty the
	// runtime's default search is used.
	SharedLibraryPath string

	Dimensions  int
	MaxSequence int
}

func (c *Config) validate() error {
	if c.ModelPath == "" {
		return errors.New("onnx model path is required")
	}
	if c.TokenizerPath == "" {
		return errors.New("onnx tokenizer path is required")
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.MaxSequence <= 2 {
		c.MaxSequence = DefaultMaxSequence
	}
	return nil
}
