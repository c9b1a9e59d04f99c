// Package cost provides the closed-form analytic time model evaluated
// at layer initialization.
//
// The estimates are informational only: they feed instrumentation and
// layer summaries and never influence numeric results or strategy
// selection.
package cost

// Params holds the machine inputs of the cost model.
type Params struct {
	CPUSpeed float64 // Sustained compute throughput, FLOP/s.
	MemoryBW float64 // Memory bandwidth, bytes/s.
}

// Default returns a placeholder machine profile. Estimates are relative
// signals, so the absolute numbers only need a consistent scale.
func Default() Params {
	return Params{
		CPUSpeed: 4e9,
		MemoryBW: 50e9,
	}
}

// MatmulTime estimates one [m,k]·[k,n] multiply: the 2mnk flops at
// CPUSpeed plus streaming the three operands through memory.
func MatmulTime(m, n, k, elemSize int, p Params) float64 {
	if p.CPUSpeed <= 0 || p.MemoryBW <= 0 {
		return 0
	}
	flops := 2 * float64(m) * float64(n) * float64(k)
	bytes := float64(m*k+k*n+m*n) * float64(elemSize)
	return flops/p.CPUSpeed + bytes/p.MemoryBW
}

// Im2colTime estimates expanding receptive fields into an [m, n] column
// matrix: a read and a write per element, bandwidth bound.
func Im2colTime(m, n, elemSize int, p Params) float64 {
	if p.MemoryBW <= 0 {
		return 0
	}
	return 2 * float64(m) * float64(n) * float64(elemSize) / p.MemoryBW
}

// Col2imTime estimates folding an [m, n] column matrix back into
// spatial layout. Same traffic pattern as the expansion.
func Col2imTime(m, n, elemSize int, p Params) float64 {
	return Im2colTime(m, n, elemSize, p)
}
