package nn

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/cost"
	"github.com/tandem-ml/tandem/internal/tensor"
	"github.com/tandem-ml/tandem/internal/trace"
)

// FC is a fully connected layer: y = x·W (+ broadcast bias).
//
// W has shape (fanIn, units) with fanIn taken from the predecessor's
// output shape at Initialize. Input must be flattened to one feature
// axis first (see Flatten).
type FC struct {
	base
	units   int
	useBias bool

	weightsInit Initializer
	biasInit    Initializer

	w *Parameter
	b *Parameter

	x *tensor.Tensor // cached input for the weight gradient
}

// NewFC creates a fully connected layer with the given output width.
// Weights use Glorot uniform initialization, biases zeros.
func NewFC(units int, useBias bool) *FC {
	if units <= 0 {
		panic(fmt.Sprintf("fc: invalid units %d", units))
	}
	return &FC{
		units:       units,
		useBias:     useBias,
		weightsInit: GlorotUniform,
		biasInit:    Zeros,
	}
}

// SetInitializers overrides the parameter initializers. Must be called
// before Initialize.
func (l *FC) SetInitializers(weights, biases Initializer) {
	if weights != nil {
		l.weightsInit = weights
	}
	if biases != nil {
		l.biasInit = biases
	}
}

// Initialize implements Layer.
func (l *FC) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	if len(prev) != 1 {
		return id, fmt.Errorf("fc: input shape %v is not flat (flatten spatial input first)", prev)
	}
	fanIn := prev[0]

	l.id = id
	l.needDx = needDx
	l.shape = tensor.Shape{l.units}

	l.w = newParameter("weights", l.weightsInit(l.cfg.RNG, tensor.Shape{fanIn, l.units}))
	l.params = []*Parameter{l.w}
	if l.useBias {
		l.b = newParameter("biases", l.biasInit(l.cfg.RNG, tensor.Shape{l.units}))
		l.params = append(l.params, l.b)
	}

	b, es, cp := l.cfg.BatchSize, l.cfg.ElemSize, l.cfg.Cost
	l.fwdTime = cost.MatmulTime(b, l.units, fanIn, es, cp)
	// Weight-gradient cost is always paid; the input-gradient multiply
	// only when someone upstream consumes dx.
	l.bwdTime = cost.MatmulTime(fanIn, l.units, b, es, cp)
	if needDx {
		l.bwdTime += cost.MatmulTime(b, fanIn, l.units, es, cp)
	}
	return id + 1, nil
}

// Forward implements Layer.
func (l *FC) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.w == nil {
		panic("fc: forward before initialize")
	}
	xs := x.Shape()
	if len(xs) != 2 || xs[1] != l.w.Data().Shape()[0] {
		panic(fmt.Sprintf("fc: input shape %v does not match weights %v", xs, l.w.Data().Shape()))
	}
	l.x = x

	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	y := l.cfg.MatMul.MatMul(x, l.w.Data())
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)

	if l.useBias {
		yd, bd := y.Data(), l.b.Data().Data()
		for i := 0; i < xs[0]; i++ {
			row := yd[i*l.units : (i+1)*l.units]
			for j, bv := range bd {
				row[j] += bv
			}
		}
	}
	return y
}

// Backward implements Layer.
func (l *FC) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if l.x == nil {
		panic("fc: backward before forward")
	}
	batch := dy.Shape()[0]

	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	dw := l.cfg.MatMul.MatMul(l.x.Transpose(1, 0), dy)
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)
	l.w.setGrad(dw)

	if l.useBias {
		db := l.b.Grad().Data()
		for j := range db {
			db[j] = 0
		}
		dyd := dy.Data()
		for i := 0; i < batch; i++ {
			row := dyd[i*l.units : (i+1)*l.units]
			for j, v := range row {
				db[j] += v
			}
		}
	}

	if !l.needDx {
		return nil
	}
	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	dx := l.cfg.MatMul.MatMul(dy, l.w.Data().Transpose(1, 0))
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)
	return dx
}
