package nn

import (
	"github.com/tandem-ml/tandem/internal/tensor"
)

// Dropout zeroes each activation with probability rate during training
// and scales the survivors by 1/(1-rate) (inverted dropout), so
// evaluation is a plain identity.
type Dropout struct {
	base
	rate float64
	mask *tensor.Tensor
}

// NewDropout creates a dropout layer. rate is clamped to [0, 1].
func NewDropout(rate float64) *Dropout {
	return &Dropout{rate: min(1, max(0, rate))}
}

// Initialize implements Layer.
func (l *Dropout) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	l.id = id
	l.needDx = needDx
	l.shape = prev.Clone()
	return id + 1, nil
}

// Forward implements Layer.
func (l *Dropout) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.shape == nil {
		panic("dropout: forward before initialize")
	}
	if l.cfg.Mode != Train {
		return x
	}

	keep := 1 - l.rate
	l.mask = tensor.New(x.Shape())
	md := l.mask.Data()
	if keep > 0 {
		scale := 1 / keep
		for i := range md {
			if l.cfg.RNG.Float64() < keep {
				md[i] = scale
			}
		}
	}

	y := tensor.New(x.Shape())
	yd, xd := y.Data(), x.Data()
	for i := range yd {
		yd[i] = xd[i] * md[i]
	}
	return y
}

// Backward implements Layer.
func (l *Dropout) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if !l.needDx {
		return nil
	}
	if l.cfg.Mode != Train || l.mask == nil {
		return dy
	}
	dx := tensor.New(dy.Shape())
	dd, dyd, md := dx.Data(), dy.Data(), l.mask.Data()
	for i := range dd {
		dd[i] = dyd[i] * md[i]
	}
	return dx
}
