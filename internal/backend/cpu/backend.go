// Package cpu implements the native compute kernels of the training
// core: a loop-based matrix-multiply backend, the im2col/col2im spatial
// transforms, the column-argmax kernel used by max pooling, and the
// fused re-indexed convolution kernel (conv-gemm).
//
// All kernels run to completion before returning; internal goroutine
// fan-out (via internal/parallel) is invisible to callers.
package cpu

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/parallel"
	"github.com/tandem-ml/tandem/internal/tensor"
)

// Backend is the native matrix-multiply backend.
//
// It exists mainly as the zero-dependency fallback and as an
// independent implementation to cross-check the BLAS backend against;
// the blas package is the default for real runs.
type Backend struct {
	par parallel.Config
}

// New creates a native backend with default parallelism.
func New() *Backend {
	return &Backend{par: parallel.DefaultConfig()}
}

// NewSequential creates a native backend that never spawns goroutines.
func NewSequential() *Backend {
	return &Backend{par: parallel.Config{}}
}

// MatMul computes a·b for 2-D operands.
//
// a: [m, k], b: [k, n] -> [m, n]. Panics on shape mismatch.
func (be *Backend) MatMul(a, b *tensor.Tensor) *tensor.Tensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("cpu: matmul expects 2-D operands, got %v x %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("cpu: matmul inner dimension mismatch: %v x %v", as, bs))
	}
	m, k, n := as[0], as[1], bs[1]

	out := tensor.New(tensor.Shape{m, n})
	ad, bd, cd := a.Data(), b.Data(), out.Data()

	parallel.ForRows(m, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			ci := cd[i*n : (i+1)*n]
			for kk := 0; kk < k; kk++ {
				aik := ad[i*k+kk]
				if aik == 0 {
					continue
				}
				bk := bd[kk*n : (kk+1)*n]
				for j, bv := range bk {
					ci[j] += aik * bv
				}
			}
		}
	}, be.par)

	return out
}
