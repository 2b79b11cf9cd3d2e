//go:build onnx

package onnx

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/nim-memory/logging"
	"github.com/becomeliminal/nim-memory/memory"
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath points at libonnxruntime. Empty uses the loader default.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequenceLength bounds the token count (default: 128).
	MaxSequenceLength int
}

// Embedder generates embeddings using ONNX Runtime.
type Embedder struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	maxLen     int
	logger     *slog.Logger
}

// New loads the model and tokenizer. The ONNX Runtime environment is
// process-global; New initializes it on first use.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, goerr.New("ModelPath is required", goerr.T(memory.ErrTagInvalidArgument))
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequenceLength == 0 {
		cfg.MaxSequenceLength = 128
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, goerr.Wrap(err, "failed to initialize ONNX runtime", goerr.V("library", cfg.LibraryPath))
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ONNX session", goerr.V("model", cfg.ModelPath))
	}

	logger := logging.Default()
	logger.Info("onnx embedder loaded", "model", cfg.ModelPath, "dimensions", cfg.Dimensions)

	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxLen:     cfg.MaxSequenceLength,
		logger:     logger,
	}, nil
}

// Embed converts text to a unit-length embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "embed canceled", goerr.T(memory.ErrTagEmbedding))
	}

	enc := e.tokenizer.Encode(text, e.maxLen)
	shape := ort.NewShape(1, int64(e.maxLen))

	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{enc.InputIDs, enc.AttentionMask, enc.TokenTypeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create input tensor", goerr.T(memory.ErrTagEmbedding))
		}
		inputs = append(inputs, tensor)
	}

	// nil outputs are allocated by Run
	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, goerr.Wrap(err, "ONNX inference failed", goerr.T(memory.ErrTagEmbedding))
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, goerr.New("unexpected output tensor type", goerr.T(memory.ErrTagEmbedding))
	}

	vec, err := Pool(out.GetData(), out.GetShape(), enc.AttentionMask, e.dimensions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to pool output", goerr.T(memory.ErrTagEmbedding))
	}
	e.logger.Debug("onnx embedding computed", "tokens", enc.Attended())
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases ONNX resources.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

var _ memory.Embedder = (*Embedder)(nil)
