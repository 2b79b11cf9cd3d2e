//go:build !onnx

package cli

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/memory"
)

func (r *runtime) newONNX() (memory.Embedder, error) {
	return nil, goerr.New("onnx embedder is not compiled in; rebuild with -tags onnx",
		goerr.T(memory.ErrTagInvalidArgument))
}
