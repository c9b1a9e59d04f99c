package nn

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// Input fixes the data shape at the head of a network. It performs no
// computation.
type Input struct {
	base
	declared tensor.Shape
}

// NewInput creates an input layer declaring the per-sample data shape
// (batch axis excluded), e.g. NewInput(1, 28, 28) for MNIST.
func NewInput(dims ...int) *Input {
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("input: %v", err))
	}
	return &Input{declared: shape.Clone()}
}

// Initialize implements Layer. prev is ignored; the declared shape is
// authoritative.
func (l *Input) Initialize(_ tensor.Shape, needDx bool, id int) (int, error) {
	l.id = id
	l.needDx = needDx
	l.shape = l.declared.Clone()
	return id + 1, nil
}

// Forward implements Layer (identity).
func (l *Input) Forward(x *tensor.Tensor) *tensor.Tensor { return x }

// Backward implements Layer (identity; nil when no input gradient is
// needed, which is always the case at the head of a network).
func (l *Input) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if !l.needDx {
		return nil
	}
	return dy
}
