package cpu

import (
	"fmt"
	"sync"

	"github.com/tandem-ml/tandem/internal/parallel"
	"github.com/tandem-ml/tandem/internal/tensor"
)

// ConvGemm is the fused re-indexed convolution kernel.
//
// It computes the same algebra as Im2col followed by a gemm, but walks
// the input through strided re-indexing instead of materializing the
// column matrix.
//
// w: [f, c, kh, kw] filters, x: [n, c, h, w] images.
// Result: [f, n*ho*wo], the same layout the im2col path produces before
// its reshape/transpose, so both paths share the epilogue.
func ConvGemm(w, x *tensor.Tensor, vpad, hpad, vstride, hstride int) *tensor.Tensor {
	ws, xs := w.Shape(), x.Shape()
	if len(ws) != 4 || len(xs) != 4 {
		panic(fmt.Sprintf("cpu: conv-gemm expects 4-D filters and images, got %v x %v", ws, xs))
	}
	if ws[1] != xs[1] {
		panic(fmt.Sprintf("cpu: conv-gemm channel mismatch: filters %v vs images %v", ws, xs))
	}
	f, c, kh, kw := ws[0], ws[1], ws[2], ws[3]
	n, h, wi := xs[0], xs[2], xs[3]
	ho := OutSize(h, kh, vpad, vstride)
	wo := OutSize(wi, kw, hpad, hstride)
	if ho <= 0 || wo <= 0 {
		panic(fmt.Sprintf("cpu: conv-gemm produces empty output (ho=%d, wo=%d)", ho, wo))
	}

	out := tensor.New(tensor.Shape{f, n * ho * wo})
	wd, xd, od := w.Data(), x.Data(), out.Data()
	colsN := n * ho * wo

	parallel.ForRows(f, func(lo, hi int) {
		for fi := lo; fi < hi; fi++ {
			filter := wd[fi*c*kh*kw : (fi+1)*c*kh*kw]
			dst := od[fi*colsN : (fi+1)*colsN]
			for ni := 0; ni < n; ni++ {
				for oh := 0; oh < ho; oh++ {
					hBase := oh*vstride - vpad
					for ow := 0; ow < wo; ow++ {
						wBase := ow*hstride - hpad
						sum := 0.0
						for ci := 0; ci < c; ci++ {
							imgBase := ni*c*h*wi + ci*h*wi
							filtBase := ci * kh * kw
							for i := 0; i < kh; i++ {
								hh := hBase + i
								if hh < 0 || hh >= h {
									continue
								}
								for j := 0; j < kw; j++ {
									ww := wBase + j
									if ww < 0 || ww >= wi {
										continue
									}
									sum += filter[filtBase+i*kw+j] * xd[imgBase+hh*wi+ww]
								}
							}
						}
						dst[(ni*ho+oh)*wo+ow] = sum
					}
				}
			}
		}
	}, parallel.DefaultConfig())

	return out
}

// reorderKey identifies one reorder/stride table: kernel extent, output
// extent and stride along one spatial axis.
type reorderKey struct {
	kernel, out, stride int
}

type reorderEntry struct {
	key    reorderKey
	table  []int
	stride int
}

// reorderCache keeps the last few reorder tables. The triple only
// changes when a layer is re-initialized with different geometry, so a
// handful of entries covers a whole network.
var reorderCache struct {
	sync.Mutex
	entries []reorderEntry
}

const reorderCacheCap = 4

// ReorderTable returns the row re-indexing table and replacement stride
// used by the conv-gemm backward pass.
//
// For stride 1 no reordering is needed: the table is nil and the
// replacement stride is 1. For stride s > 1 the padded input rows are
// re-indexed as table[i*out+j] = i + j*s (i < kernel, j < out) and the
// kernel then walks them with stride out.
func ReorderTable(kernel, out, stride int) (table []int, newStride int) {
	if stride == 1 {
		return nil, 1
	}

	key := reorderKey{kernel, out, stride}
	reorderCache.Lock()
	defer reorderCache.Unlock()
	for i, e := range reorderCache.entries {
		if e.key == key {
			// Move to front (most recently used).
			copy(reorderCache.entries[1:], reorderCache.entries[:i])
			reorderCache.entries[0] = e
			return e.table, e.stride
		}
	}

	table = make([]int, 0, kernel*out)
	for i := 0; i < kernel; i++ {
		for j := 0; j < out; j++ {
			table = append(table, i+j*stride)
		}
	}

	e := reorderEntry{key: key, table: table, stride: out}
	if len(reorderCache.entries) < reorderCacheCap {
		reorderCache.entries = append(reorderCache.entries, reorderEntry{})
	}
	copy(reorderCache.entries[1:], reorderCache.entries)
	reorderCache.entries[0] = e
	return table, out
}

// PadNCHW zero-pads the two spatial axes of a [n, c, h, w] tensor.
func PadNCHW(x *tensor.Tensor, vpad, hpad int) *tensor.Tensor {
	xs := x.Shape()
	if len(xs) != 4 {
		panic(fmt.Sprintf("cpu: pad expects 4-D input, got %v", xs))
	}
	if vpad == 0 && hpad == 0 {
		return x.Clone()
	}
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	hp, wp := h+2*vpad, w+2*hpad
	out := tensor.New(tensor.Shape{n, c, hp, wp})
	xd, od := x.Data(), out.Data()
	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			srcBase := ni*c*h*w + ci*h*w
			dstBase := ni*c*hp*wp + ci*hp*wp
			for hh := 0; hh < h; hh++ {
				copy(od[dstBase+(hh+vpad)*wp+hpad:dstBase+(hh+vpad)*wp+hpad+w],
					xd[srcBase+hh*w:srcBase+(hh+1)*w])
			}
		}
	}
	return out
}

// SelectRows rebuilds a [n, c, h, w] tensor with the h axis re-indexed
// by table (the result has len(table) rows). A nil table returns the
// input unchanged.
func SelectRows(x *tensor.Tensor, table []int) *tensor.Tensor {
	if table == nil {
		return x
	}
	xs := x.Shape()
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	out := tensor.New(tensor.Shape{n, c, len(table), w})
	xd, od := x.Data(), out.Data()
	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			srcBase := ni*c*h*w + ci*h*w
			dstBase := (ni*c + ci) * len(table) * w
			for i, src := range table {
				copy(od[dstBase+i*w:dstBase+(i+1)*w], xd[srcBase+src*w:srcBase+(src+1)*w])
			}
		}
	}
	return out
}

// SelectCols rebuilds a [n, c, h, w] tensor with the w axis re-indexed
// by table. A nil table returns the input unchanged.
func SelectCols(x *tensor.Tensor, table []int) *tensor.Tensor {
	if table == nil {
		return x
	}
	xs := x.Shape()
	n, c, h, w := xs[0], xs[1], xs[2], xs[3]
	out := tensor.New(tensor.Shape{n, c, h, len(table)})
	xd, od := x.Data(), out.Data()
	for outer := 0; outer < n*c*h; outer++ {
		src := xd[outer*w : (outer+1)*w]
		dst := od[outer*len(table) : (outer+1)*len(table)]
		for i, s := range table {
			dst[i] = src[s]
		}
	}
	return out
}
