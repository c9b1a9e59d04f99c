package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-ml/tandem/internal/tensor"
)

func TestOutSize(t *testing.T) {
	tests := []struct {
		in, kernel, pad, stride int
		want                    int
	}{
		{28, 3, 0, 1, 26},
		{28, 3, 1, 1, 28},
		{28, 2, 0, 2, 14},
		{28, 5, 2, 1, 28},
		{7, 3, 0, 2, 3},
		{5, 5, 0, 1, 1},
		{4, 5, 0, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutSize(tt.in, tt.kernel, tt.pad, tt.stride),
			"in=%d kernel=%d pad=%d stride=%d", tt.in, tt.kernel, tt.pad, tt.stride)
	}
}

// windowAt reads input position (hh, ww) of channel ci, batch ni,
// returning 0 outside the image. The reference against which the
// vectorized expansion is checked.
func windowAt(x *tensor.Tensor, ni, ci, hh, ww int) float64 {
	xs := x.Shape()
	if hh < 0 || hh >= xs[2] || ww < 0 || ww >= xs[3] {
		return 0
	}
	return x.Data()[((ni*xs[1]+ci)*xs[2]+hh)*xs[3]+ww]
}

func TestIm2colLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n, c, h, w := 2, 3, 5, 6
	kh, kw, vpad, hpad, vstride, hstride := 3, 2, 1, 0, 2, 1
	x := tensor.Randn(rng, tensor.Shape{n, c, h, w})

	cols := Im2col(x, kh, kw, vpad, hpad, vstride, hstride)
	ho := OutSize(h, kh, vpad, vstride)
	wo := OutSize(w, kw, hpad, hstride)
	require.Equal(t, tensor.Shape{c * kh * kw, n * ho * wo}, cols.Shape())

	cd := cols.Data()
	colsN := n * ho * wo
	for ci := 0; ci < c; ci++ {
		for ki := 0; ki < kh; ki++ {
			for kj := 0; kj < kw; kj++ {
				r := (ci*kh+ki)*kw + kj
				for ni := 0; ni < n; ni++ {
					for oh := 0; oh < ho; oh++ {
						for ow := 0; ow < wo; ow++ {
							j := (ni*ho+oh)*wo + ow
							want := windowAt(x, ni, ci, oh*vstride-vpad+ki, ow*hstride-hpad+kj)
							assert.Equal(t, want, cd[r*colsN+j],
								"row %d col %d", r, j)
						}
					}
				}
			}
		}
	}
}

// Col2im is the adjoint of Im2col: <Im2col(x), C> must equal
// <x, Col2im(C)> for every x and C. This pins down the scatter-add
// exactly, padding and overlaps included.
func TestCol2imAdjointOfIm2col(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	configs := []struct {
		n, c, h, w                       int
		kh, kw, vpad, hpad, vstr, hstr int
	}{
		{1, 1, 4, 4, 2, 2, 0, 0, 1, 1},
		{2, 3, 6, 5, 3, 3, 1, 1, 1, 1},
		{2, 2, 7, 7, 3, 3, 1, 1, 2, 2},
		{1, 2, 6, 8, 2, 3, 0, 2, 2, 1},
	}
	for _, cfg := range configs {
		x := tensor.Randn(rng, tensor.Shape{cfg.n, cfg.c, cfg.h, cfg.w})
		cols := Im2col(x, cfg.kh, cfg.kw, cfg.vpad, cfg.hpad, cfg.vstr, cfg.hstr)
		cRand := tensor.Randn(rng, cols.Shape())
		folded := Col2im(cRand, cfg.n, cfg.c, cfg.h, cfg.w,
			cfg.kh, cfg.kw, cfg.vpad, cfg.hpad, cfg.vstr, cfg.hstr)

		lhs, rhs := 0.0, 0.0
		for i, v := range cols.Data() {
			lhs += v * cRand.Data()[i]
		}
		for i, v := range x.Data() {
			rhs += v * folded.Data()[i]
		}
		assert.InDelta(t, lhs, rhs, 1e-9, "config %+v", cfg)
	}
}

func TestCol2imAccumulatesOverlaps(t *testing.T) {
	// 1x1x3x3 input, 2x2 kernel, stride 1: each input position is
	// covered by as many windows as overlap it. With all-ones columns
	// the fold yields exactly those coverage counts.
	cols := tensor.Full(tensor.Shape{4, 4}, 1)
	x := Col2im(cols, 1, 1, 3, 3, 2, 2, 0, 0, 1, 1)
	want := []float64{
		1, 2, 1,
		2, 4, 2,
		1, 2, 1,
	}
	assert.Equal(t, want, x.Data())
}

func TestCol2imShapeMismatchPanics(t *testing.T) {
	cols := tensor.Zeros(tensor.Shape{4, 3})
	assert.Panics(t, func() {
		Col2im(cols, 1, 1, 3, 3, 2, 2, 0, 0, 1, 1)
	})
}

func TestArgmaxCols(t *testing.T) {
	cols, err := tensor.FromSlice([]float64{
		1, 5, -2,
		3, 0, -1,
		2, 4, -3,
	}, tensor.Shape{3, 3})
	require.NoError(t, err)

	maxes, rows := ArgmaxCols(cols)
	assert.Equal(t, []float64{3, 5, -1}, maxes.Data())
	assert.Equal(t, []int{1, 0, 1}, rows)
}

func TestArgmaxColsFirstWinnerOnTies(t *testing.T) {
	cols, err := tensor.FromSlice([]float64{
		2, 2,
		2, 3,
	}, tensor.Shape{2, 2})
	require.NoError(t, err)

	_, rows := ArgmaxCols(cols)
	assert.Equal(t, []int{0, 1}, rows)
}
