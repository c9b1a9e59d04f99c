package nn

import (
	"github.com/tandem-ml/tandem/internal/tensor"
)

// Flatten collapses all per-sample axes into one feature axis,
// typically between the spatial stack and the fully connected head.
type Flatten struct {
	base
	prev tensor.Shape
}

// NewFlatten creates a flatten layer.
func NewFlatten() *Flatten {
	return &Flatten{}
}

// Initialize implements Layer.
func (l *Flatten) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	l.id = id
	l.needDx = needDx
	l.prev = prev.Clone()
	l.shape = tensor.Shape{prev.NumElements()}
	return id + 1, nil
}

// Forward implements Layer.
func (l *Flatten) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.prev == nil {
		panic("flatten: forward before initialize")
	}
	return x.Reshape(x.Shape()[0], l.shape[0])
}

// Backward implements Layer.
func (l *Flatten) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if !l.needDx {
		return nil
	}
	dims := append([]int{dy.Shape()[0]}, l.prev...)
	return dy.Reshape(dims...)
}
