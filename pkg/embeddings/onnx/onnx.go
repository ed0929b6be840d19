//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/memory"
)

var initOnce struct {
	sync.Once
	err error
}

// Embedder generates embeddings with ONNX Runtime.
type Embedder struct {
	// mu serializes Run; a DynamicAdvancedSession is not safe for concurrent use.
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	cfg       Config
}

var _ embeddings.Embedder = (*Embedder)(nil)

// New loads the tokenizer and model.
func New(cfg Config) (*Embedder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	initOnce.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		initOnce.err = ort.InitializeEnvironment()
	})
	if initOnce.err != nil {
		return nil, fmt.Errorf("%w: initializing onnx runtime: %v", memory.ErrModelUnavailable, initOnce.err)
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating onnx session: %v", memory.ErrModelUnavailable, err)
	}

	return &Embedder{session: session, tokenizer: tokenizer, cfg: cfg}, nil
}

// Embed runs the model and mean-pools the last hidden state.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.closed() {
		return nil, errClosed
	}

	seq := e.cfg.MaxSequence
	ids, mask := e.tokenizer.Encode(text, seq)
	typeIDs := make([]int64, seq)

	shape := ort.NewShape(1, int64(seq))
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, typeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("creating input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	err := e.run(inputs, outputs)
	if err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %v", memory.ErrModelUnavailable, err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", memory.ErrModelUnavailable)
	}

	data := out.GetData()
	shapeOut := out.GetShape()
	switch len(shapeOut) {
	case 2:
		if len(data) < e.cfg.Dimensions {
			return nil, fmt.Errorf("%w: output has %d values, expected %d", memory.ErrModelUnavailable, len(data), e.cfg.Dimensions)
		}
		return append([]float32(nil), data[:e.cfg.Dimensions]...), nil
	case 3:
		if int(shapeOut[2]) != e.cfg.Dimensions {
			return nil, fmt.Errorf("%w: hidden size %d, expected %d", memory.ErrModelUnavailable, shapeOut[2], e.cfg.Dimensions)
		}
		return meanPool(data, mask, e.cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unexpected output shape %v", memory.ErrModelUnavailable, shapeOut)
	}
}

var errClosed = fmt.Errorf("%w: onnx embedder is closed", memory.ErrModelUnavailable)

func (e *Embedder) closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session == nil
}

func (e *Embedder) run(inputs, outputs []ort.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return errClosed
	}
	return e.session.Run(inputs, outputs)
}

// Close releases the session. Later Embed calls fail with
// memory.ErrModelUnavailable.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
