//go:build onnx

package cli

import (
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func (r *runtime) newONNX() (memory.Embedder, error) {
	ec := r.cfg.Embedder
	e, err := onnx.New(onnx.Config{
		ModelPath:     ec.ONNXModelPath,
		TokenizerPath: ec.ONNXTokenizerPath,
		LibraryPath:   ec.ONNXLibraryPath,
		Dimensions:    ec.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, e.Close)
	return e, nil
}
