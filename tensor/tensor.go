// Copyright 2026 Tandem ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense row-major float64 tensor used
// throughout the Tandem training core.
//
// Example:
//
//	import "github.com/tandem-ml/tandem/tensor"
//
//	x := tensor.Zeros(tensor.Shape{2, 3})
//	y := x.Reshape(3, 2)       // shares storage
//	z := x.Transpose(1, 0)     // copies
package tensor

import (
	"math/rand"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// Shape describes tensor dimensions, outermost first.
type Shape = tensor.Shape

// Tensor is a dense row-major float64 tensor.
type Tensor = tensor.Tensor

// MatMul is the pluggable matrix-multiply backend contract. See
// backend/cpu and backend/blas for the two implementations.
type MatMul = tensor.MatMul

// New creates an uninitialized tensor of the given shape.
func New(shape Shape) *Tensor { return tensor.New(shape) }

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) *Tensor { return tensor.Zeros(shape) }

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor { return tensor.Full(shape, value) }

// FromSlice creates a tensor backed by a copy of data, which must have
// exactly shape.NumElements() elements.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// Randn creates a tensor of standard normal samples drawn from rng.
func Randn(rng *rand.Rand, shape Shape) *Tensor { return tensor.Randn(rng, shape) }

// Uniform creates a tensor of uniform samples in [lo, hi) drawn from
// rng.
func Uniform(rng *rand.Rand, shape Shape, lo, hi float64) *Tensor {
	return tensor.Uniform(rng, shape, lo, hi)
}

// Cat concatenates tensors along axis.
func Cat(ts []*Tensor, axis int) *Tensor { return tensor.Cat(ts, axis) }

// Split partitions t along axis into chunks of the given sizes.
func Split(t *Tensor, axis int, sizes []int) []*Tensor { return tensor.Split(t, axis, sizes) }
