package nn

import "github.com/tandem-ml/tandem/internal/tensor"

// Parameter is one named trainable tensor with its gradient buffer.
//
// Both tensors are allocated once at Initialize and reused in place for
// the model's lifetime: optimizers update Data in place, and every
// Backward call fully overwrites Grad (no implicit accumulation).
type Parameter struct {
	name string
	data *tensor.Tensor
	grad *tensor.Tensor
}

func newParameter(name string, data *tensor.Tensor) *Parameter {
	return &Parameter{
		name: name,
		data: data,
		grad: tensor.Zeros(data.Shape()),
	}
}

// Name returns the parameter name (e.g. "weights", "biases", "gamma").
func (p *Parameter) Name() string { return p.name }

// Data returns the parameter tensor.
func (p *Parameter) Data() *tensor.Tensor { return p.data }

// Grad returns the gradient tensor. Same shape as Data.
func (p *Parameter) Grad() *tensor.Tensor { return p.grad }

// setGrad overwrites the gradient buffer with src, which must have the
// same number of elements.
func (p *Parameter) setGrad(src *tensor.Tensor) {
	copy(p.grad.Data(), src.Data())
}
