package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// naiveMatMul is the reference gemm for the expand-then-multiply path.
func naiveMatMul(a, b *tensor.Tensor) *tensor.Tensor {
	as, bs := a.Shape(), b.Shape()
	m, k, n := as[0], as[1], bs[1]
	out := tensor.New(tensor.Shape{m, n})
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := 0; i < m; i++ {
		for kk := 0; kk < k; kk++ {
			v := ad[i*k+kk]
			for j := 0; j < n; j++ {
				od[i*n+j] += v * bd[kk*n+j]
			}
		}
	}
	return out
}

// The fused path must agree with expand-then-multiply on every
// geometry, strides and padding included.
func TestConvGemmMatchesIm2colGemm(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	configs := []struct {
		n, c, h, w, f                  int
		kh, kw, vpad, hpad, vstr, hstr int
	}{
		{1, 1, 5, 5, 1, 3, 3, 0, 0, 1, 1},
		{2, 3, 8, 8, 4, 3, 3, 1, 1, 1, 1},
		{2, 2, 9, 9, 3, 3, 3, 1, 1, 2, 2},
		{1, 4, 7, 6, 2, 2, 3, 0, 1, 1, 2},
		{3, 1, 6, 6, 5, 5, 5, 2, 2, 3, 3},
	}
	for _, cfg := range configs {
		x := tensor.Randn(rng, tensor.Shape{cfg.n, cfg.c, cfg.h, cfg.w})
		w := tensor.Randn(rng, tensor.Shape{cfg.f, cfg.c, cfg.kh, cfg.kw})

		fused := ConvGemm(w, x, cfg.vpad, cfg.hpad, cfg.vstr, cfg.hstr)

		cols := Im2col(x, cfg.kh, cfg.kw, cfg.vpad, cfg.hpad, cfg.vstr, cfg.hstr)
		wCols := w.Reshape(cfg.f, cfg.c*cfg.kh*cfg.kw)
		expanded := naiveMatMul(wCols, cols)

		require.Equal(t, expanded.Shape(), fused.Shape(), "config %+v", cfg)
		for i := range fused.Data() {
			assert.InDelta(t, expanded.Data()[i], fused.Data()[i], 1e-9,
				"config %+v index %d", cfg, i)
		}
	}
}

func TestConvGemmChannelMismatchPanics(t *testing.T) {
	w := tensor.Zeros(tensor.Shape{1, 2, 3, 3})
	x := tensor.Zeros(tensor.Shape{1, 3, 5, 5})
	assert.Panics(t, func() { ConvGemm(w, x, 0, 0, 1, 1) })
}

func TestReorderTableStrideOne(t *testing.T) {
	table, stride := ReorderTable(3, 6, 1)
	assert.Nil(t, table)
	assert.Equal(t, 1, stride)
}

func TestReorderTableStrided(t *testing.T) {
	// kernel=2, out=3, stride=2: table[i*out+j] = i + j*stride.
	table, stride := ReorderTable(2, 3, 2)
	assert.Equal(t, []int{0, 2, 4, 1, 3, 5}, table)
	assert.Equal(t, 3, stride)

	// Cached lookup returns the identical table.
	again, _ := ReorderTable(2, 3, 2)
	assert.Equal(t, table, again)
}

func TestPadNCHW(t *testing.T) {
	x, err := tensor.FromSlice([]float64{
		1, 2,
		3, 4,
	}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	p := PadNCHW(x, 1, 1)
	require.Equal(t, tensor.Shape{1, 1, 4, 4}, p.Shape())
	want := []float64{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}
	assert.Equal(t, want, p.Data())
}

func TestPadNCHWZeroPadCopies(t *testing.T) {
	x := tensor.Full(tensor.Shape{1, 1, 2, 2}, 7)
	p := PadNCHW(x, 0, 0)
	assert.True(t, x.Equal(p))
	p.Data()[0] = 0
	assert.Equal(t, 7.0, x.Data()[0])
}

func TestSelectRowsAndCols(t *testing.T) {
	x, err := tensor.FromSlice([]float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3})
	require.NoError(t, err)

	rows := SelectRows(x, []int{2, 0})
	require.Equal(t, tensor.Shape{1, 1, 2, 3}, rows.Shape())
	assert.Equal(t, []float64{7, 8, 9, 1, 2, 3}, rows.Data())

	cols := SelectCols(x, []int{1, 1, 0})
	require.Equal(t, tensor.Shape{1, 1, 3, 3}, cols.Shape())
	assert.Equal(t, []float64{2, 2, 1, 5, 5, 4, 8, 8, 7}, cols.Data())

	assert.Same(t, x, SelectRows(x, nil))
	assert.Same(t, x, SelectCols(x, nil))
}
