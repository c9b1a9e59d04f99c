package tensor

// MatMul is the pluggable matrix-multiply backend.
//
// Layers treat MatMul as an atomic blocking call: it runs to completion
// before the caller continues, and any internal parallelism is invisible
// to the layer. Implementations must not retain or mutate their operands.
type MatMul interface {
	// MatMul computes a·b for 2-D operands.
	//
	// a: [m, k], b: [k, n], result: [m, n]. Panics on rank or inner
	// dimension mismatch (programmer error).
	MatMul(a, b *Tensor) *Tensor
}
