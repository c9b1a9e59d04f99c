// Package blas implements the default matrix-multiply backend on top of
// gonum's BLAS-backed dense matrices.
//
// Tensor storage is float64 row-major, exactly what mat.Dense expects,
// so operands are wrapped without copying.
package blas

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// Backend is the gonum-backed matrix-multiply backend.
type Backend struct{}

// New creates a BLAS backend.
func New() *Backend {
	return &Backend{}
}

// MatMul computes a·b for 2-D operands.
//
// a: [m, k], b: [k, n] -> [m, n]. Panics on shape mismatch.
func (be *Backend) MatMul(a, b *tensor.Tensor) *tensor.Tensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("blas: matmul expects 2-D operands, got %v x %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("blas: matmul inner dimension mismatch: %v x %v", as, bs))
	}
	m, k, n := as[0], as[1], bs[1]

	out := tensor.New(tensor.Shape{m, n})
	am := mat.NewDense(m, k, a.Data())
	bm := mat.NewDense(k, n, b.Data())
	cm := mat.NewDense(m, n, out.Data())
	cm.Mul(am, bm)
	return out
}
