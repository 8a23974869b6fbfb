package rag

import (
	"errors"
	"log/slog"
	"math"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// cosineFunc computes cosine similarity between two L2-normalized vectors.
// The default is the pure Go reference; init swaps in the Gonum BLAS kernel
// on CPUs with AVX2, where Gonum's internal SIMD dispatch pays off.
var cosineFunc = dotProductGo

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) {
		cosineFunc = dotProductGonum
		slog.Debug("[RAG] similarity kernel: Gonum (SIMD)")
		return
	}
	slog.Debug("[RAG] similarity kernel: pure Go")
}

// dotProductGo is the pure Go reference implementation.
func dotProductGo(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, errors.New("dotProduct: vectors must have the same length")
	}
	var sum float32
	for i := range v1 {
		sum += v1[i] * v2[i]
	}
	return float64(sum), nil
}

var gonumEngine = gonum.Implementation{}

// dotProductGonum uses the Gonum BLAS library for an optimized dot product.
func dotProductGonum(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, errors.New("dotProduct: vectors must have the same length")
	}
	return float64(gonumEngine.Sdot(len(v1), v1, 1, v2, 1)), nil
}

// normalize scales v to unit L2 norm in place. A zero vector is left as is.
func normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
