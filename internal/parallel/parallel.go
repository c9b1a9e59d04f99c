// Package parallel provides the chunked goroutine helpers used by the
// compute kernels. Layers never see this package: kernels fan out
// internally and return only when all workers are done, so every kernel
// call stays an atomic blocking call from the layer's point of view.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is
// too small to be worth the goroutine overhead.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForRows runs f over row ranges [lo, hi) of an m-row matrix, one range
// per worker. Used by the gemm and im2col kernels where per-row closures
// would be too fine-grained.
func ForRows(m int, f func(lo, hi int), cfg Config) {
	if !cfg.Enabled || m < cfg.MinChunkSize {
		f(0, m)
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((m+cfg.NumWorkers-1)/cfg.NumWorkers, 1)
	for start := 0; start < m; start += chunkSize {
		end := min(start+chunkSize, m)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
