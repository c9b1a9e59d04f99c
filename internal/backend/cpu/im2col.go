package cpu

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/parallel"
	"github.com/tandem-ml/tandem/internal/tensor"
)

// OutSize computes the number of valid window placements along one
// spatial axis:
//
//	out = floor((in + 2*pad - kernel) / stride) + 1
//
// This is the single output-size formula shared by convolution and
// pooling.
func OutSize(in, kernel, pad, stride int) int {
	return (in+2*pad-kernel)/stride + 1
}

// Im2col expands the padded, strided receptive fields of x into a
// column matrix.
//
// x: [n, c, h, w]. Result: [c*kh*kw, n*ho*wo] where column
// j = (n*ho + oh)*wo + ow holds the flattened window feeding output
// position (oh, ow) of batch element n, and row r = (c*kh + i)*kw + j
// holds kernel offset (i, j) of channel c. Out-of-bounds positions read
// as zero (padding).
//
// This row/column layout makes convolution a plain gemm:
// y = reshape(W)·cols.
func Im2col(x *tensor.Tensor, kh, kw, vpad, hpad, vstride, hstride int) *tensor.Tensor {
	xs := x.Shape()
	if len(xs) != 4 {
		panic(fmt.Sprintf("cpu: im2col expects 4-D input [n,c,h,w], got %v", xs))
	}
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	ho := OutSize(h, kh, vpad, vstride)
	wo := OutSize(w, kw, hpad, hstride)
	if ho <= 0 || wo <= 0 {
		panic(fmt.Sprintf("cpu: im2col produces empty output (ho=%d, wo=%d)", ho, wo))
	}

	rows := c * kh * kw
	colsN := n * ho * wo
	cols := tensor.New(tensor.Shape{rows, colsN})
	xd, cd := x.Data(), cols.Data()

	parallel.ForRows(rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			ci := r / (kh * kw)
			ki := (r / kw) % kh
			kj := r % kw
			dst := cd[r*colsN : (r+1)*colsN]
			for ni := 0; ni < n; ni++ {
				base := ni*c*h*w + ci*h*w
				for oh := 0; oh < ho; oh++ {
					hh := oh*vstride - vpad + ki
					rowOK := hh >= 0 && hh < h
					for ow := 0; ow < wo; ow++ {
						ww := ow*hstride - hpad + kj
						j := (ni*ho+oh)*wo + ow
						if rowOK && ww >= 0 && ww < w {
							dst[j] = xd[base+hh*w+ww]
						} else {
							dst[j] = 0
						}
					}
				}
			}
		}
	}, parallel.DefaultConfig())

	return cols
}

// Col2im folds a column matrix back into spatial layout, summing the
// contributions of overlapping receptive-field placements.
//
// cols: [c*kh*kw, n*ho*wo] in Im2col layout. Result: [n, c, h, w].
// Values that fell into the padding region are discarded.
func Col2im(cols *tensor.Tensor, n, c, h, w, kh, kw, vpad, hpad, vstride, hstride int) *tensor.Tensor {
	cs := cols.Shape()
	ho := OutSize(h, kh, vpad, vstride)
	wo := OutSize(w, kw, hpad, hstride)
	if len(cs) != 2 || cs[0] != c*kh*kw || cs[1] != n*ho*wo {
		panic(fmt.Sprintf("cpu: col2im shape mismatch: cols %v, want [%d, %d]",
			cs, c*kh*kw, n*ho*wo))
	}

	x := tensor.New(tensor.Shape{n, c, h, w})
	xd, cd := x.Data(), cols.Data()
	colsN := cs[1]

	// Overlapping windows accumulate into the same destination, so the
	// scatter stays sequential per batch element.
	parallel.For(n, func(ni int) {
		for r := 0; r < cs[0]; r++ {
			ci := r / (kh * kw)
			ki := (r / kw) % kh
			kj := r % kw
			base := ni*c*h*w + ci*h*w
			src := cd[r*colsN : (r+1)*colsN]
			for oh := 0; oh < ho; oh++ {
				hh := oh*vstride - vpad + ki
				if hh < 0 || hh >= h {
					continue
				}
				for ow := 0; ow < wo; ow++ {
					ww := ow*hstride - hpad + kj
					if ww < 0 || ww >= w {
						continue
					}
					xd[base+hh*w+ww] += src[(ni*ho+oh)*wo+ow]
				}
			}
		}
	}, parallel.Config{Enabled: n > 1, NumWorkers: n, MinChunkSize: 1})

	return x
}

// ArgmaxCols reduces a column matrix along the window axis (axis 0),
// returning the per-column maximum and the winning row index of each
// column. Used by max pooling to record where each output value came
// from.
func ArgmaxCols(cols *tensor.Tensor) (maxes *tensor.Tensor, rows []int) {
	cs := cols.Shape()
	if len(cs) != 2 {
		panic(fmt.Sprintf("cpu: argmax-cols expects 2-D input, got %v", cs))
	}
	r, n := cs[0], cs[1]
	if r == 0 {
		panic("cpu: argmax-cols over empty window axis")
	}

	maxes = tensor.New(tensor.Shape{n})
	rows = make([]int, n)
	cd, md := cols.Data(), maxes.Data()

	for j := 0; j < n; j++ {
		best := cd[j]
		bestRow := 0
		for i := 1; i < r; i++ {
			if v := cd[i*n+j]; v > best {
				best = v
				bestRow = i
			}
		}
		md[j] = best
		rows[j] = bestRow
	}
	return maxes, rows
}
