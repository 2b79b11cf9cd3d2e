package onnx

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
)

// Pool reduces model output to a single unit-length sentence vector.
//
// A 2-D output [1, dims] is taken as already pooled. A 3-D output
// [1, seq, dims] is mean-pooled over positions where mask is 1.
func Pool(output []float32, shape []int64, mask []int64, dims int) ([]float32, error) {
	switch len(shape) {
	case 2:
		if shape[0] != 1 || shape[1] != int64(dims) || len(output) < dims {
			return nil, goerr.New("unexpected pooled output shape", goerr.V("shape", shape), goerr.V("dims", dims))
		}
		vec := make([]float32, dims)
		copy(vec, output[:dims])
		return Normalize(vec), nil

	case 3:
		batch, seq, hidden := shape[0], int(shape[1]), int(shape[2])
		if batch != 1 {
			return nil, goerr.New("expected batch size 1", goerr.V("batch", batch))
		}
		if hidden != dims {
			return nil, goerr.New("hidden size mismatch", goerr.V("hidden", hidden), goerr.V("dims", dims))
		}
		if len(output) < seq*hidden || len(mask) < seq {
			return nil, goerr.New("output shorter than shape", goerr.V("shape", shape), goerr.V("len", len(output)))
		}

		vec := make([]float32, dims)
		attended := 0
		for i := range seq {
			if mask[i] != 1 {
				continue
			}
			attended++
			row := output[i*hidden : (i+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, goerr.New("no attended tokens")
		}
		for j := range vec {
			vec[j] /= float32(attended)
		}
		return Normalize(vec), nil
	}
	return nil, goerr.New("unexpected output shape", goerr.V("shape", shape))
}

// Normalize scales vec to unit length in place. A zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
