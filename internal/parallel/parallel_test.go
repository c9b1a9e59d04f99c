package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Enabled: true, NumWorkers: 4, MinChunkSize: 1},
		DefaultConfig(),
	} {
		const n = 1000
		counts := make([]int32, n)
		For(n, func(i int) {
			atomic.AddInt32(&counts[i], 1)
		}, cfg)
		for i, c := range counts {
			assert.Equal(t, int32(1), c, "index %d with cfg %+v", i, cfg)
		}
	}
}

func TestForRowsCoversRangeExactly(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Enabled: true, NumWorkers: 3, MinChunkSize: 1},
		DefaultConfig(),
	} {
		const m = 257
		covered := make([]int32, m)
		ForRows(m, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&covered[i], 1)
			}
		}, cfg)
		for i, c := range covered {
			assert.Equal(t, int32(1), c, "row %d with cfg %+v", i, cfg)
		}
	}
}

func TestForZeroItems(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}
