// Package tensor provides the dense row-major float64 tensor used by the
// Tandem training core, together with the pluggable matrix-multiply
// backend contract.
//
// Tensors are contiguous and row-major. Spatial data uses the
// [batch, channels, height, width] layout throughout the library.
package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense, row-major, N-dimensional float64 tensor.
//
// Storage is a single contiguous slice. Reshape shares storage; every
// other transformation copies.
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor: %v", err))
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float64, shape.NumElements()),
	}
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice creates a tensor backed by a copy of data.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := &Tensor{shape: shape.Clone(), data: make([]float64, len(data))}
	copy(t.data, data)
	return t, nil
}

// Randn creates a tensor with values drawn from N(0, 1).
func Randn(rng *rand.Rand, shape Shape) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}

// Uniform creates a tensor with values drawn from U(lo, hi).
func Uniform(rng *rand.Rand, shape Shape, lo, hi float64) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = lo + rng.Float64()*(hi-lo)
	}
	return t
}

// Shape returns the tensor's shape. Callers must not mutate it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the backing slice in row-major order.
func (t *Tensor) Data() []float64 {
	return t.data
}

// NumElements returns the number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
	copy(c.data, t.data)
	return c
}

// Equal reports whether two tensors have identical shape and contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i := range t.data {
		if t.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// Reshape returns a tensor with the given dimensions sharing t's storage.
//
// Panics if the element count changes.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := Shape(dims)
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v (%d elements) to %v (%d elements)",
			t.shape, len(t.data), shape, shape.NumElements()))
	}
	return &Tensor{shape: shape.Clone(), data: t.data}
}

// Transpose returns a copy with axes permuted by perm.
//
// perm must be a permutation of [0, len(shape)). Transpose(1, 0) on a
// 2-D tensor is the ordinary matrix transpose.
func (t *Tensor) Transpose(perm ...int) *Tensor {
	nd := len(t.shape)
	if len(perm) != nd {
		panic(fmt.Sprintf("tensor: transpose perm %v does not match rank %d", perm, nd))
	}
	seen := make([]bool, nd)
	outShape := make(Shape, nd)
	for i, p := range perm {
		if p < 0 || p >= nd || seen[p] {
			panic(fmt.Sprintf("tensor: invalid transpose perm %v", perm))
		}
		seen[p] = true
		outShape[i] = t.shape[p]
	}

	out := New(outShape)
	outStrides := outShape.ComputeStrides()
	idx := make([]int, nd)
	for i := range t.data {
		// idx holds the source coordinate of element i.
		off := 0
		for d := 0; d < nd; d++ {
			// Position of source axis perm[d] within the output.
			off += idx[perm[d]] * outStrides[d]
		}
		out.data[off] = t.data[i]

		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Cat concatenates tensors along axis. All other dimensions must match.
func Cat(ts []*Tensor, axis int) *Tensor {
	if len(ts) == 0 {
		panic("tensor: cat of zero tensors")
	}
	first := ts[0].shape
	if axis < 0 || axis >= len(first) {
		panic(fmt.Sprintf("tensor: cat axis %d out of range for rank %d", axis, len(first)))
	}
	total := 0
	for _, t := range ts {
		if len(t.shape) != len(first) {
			panic(fmt.Sprintf("tensor: cat rank mismatch %v vs %v", t.shape, first))
		}
		for d := range first {
			if d != axis && t.shape[d] != first[d] {
				panic(fmt.Sprintf("tensor: cat shape mismatch %v vs %v on axis %d", t.shape, first, d))
			}
		}
		total += t.shape[axis]
	}

	outShape := first.Clone()
	outShape[axis] = total
	out := New(outShape)

	outer := 1
	for d := 0; d < axis; d++ {
		outer *= first[d]
	}
	inner := 1
	for d := axis + 1; d < len(first); d++ {
		inner *= first[d]
	}

	rowWidth := total * inner
	offset := 0
	for _, t := range ts {
		width := t.shape[axis] * inner
		for o := 0; o < outer; o++ {
			copy(out.data[o*rowWidth+offset:o*rowWidth+offset+width],
				t.data[o*width:(o+1)*width])
		}
		offset += width
	}
	return out
}

// Split partitions t along axis into len(sizes) tensors whose axis
// dimensions are sizes. The sizes must sum to the axis dimension.
func Split(t *Tensor, axis int, sizes []int) []*Tensor {
	if axis < 0 || axis >= len(t.shape) {
		panic(fmt.Sprintf("tensor: split axis %d out of range for rank %d", axis, len(t.shape)))
	}
	sum := 0
	for _, s := range sizes {
		sum += s
	}
	if sum != t.shape[axis] {
		panic(fmt.Sprintf("tensor: split sizes %v do not sum to axis dimension %d", sizes, t.shape[axis]))
	}

	outer := 1
	for d := 0; d < axis; d++ {
		outer *= t.shape[d]
	}
	inner := 1
	for d := axis + 1; d < len(t.shape); d++ {
		inner *= t.shape[d]
	}

	rowWidth := t.shape[axis] * inner
	parts := make([]*Tensor, len(sizes))
	offset := 0
	for i, s := range sizes {
		shape := t.shape.Clone()
		shape[axis] = s
		p := New(shape)
		width := s * inner
		for o := 0; o < outer; o++ {
			copy(p.data[o*width:(o+1)*width],
				t.data[o*rowWidth+offset:o*rowWidth+offset+width])
		}
		parts[i] = p
		offset += width
	}
	return parts
}
