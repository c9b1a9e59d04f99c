package nn

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/backend/cpu"
	"github.com/tandem-ml/tandem/internal/cost"
	"github.com/tandem-ml/tandem/internal/tensor"
	"github.com/tandem-ml/tandem/internal/trace"
)

// Pool2DConfig holds the structural hyperparameters of a pooling layer.
//
// A window dimension of 0 means "the full remaining spatial extent
// along that axis", bound at Initialize (global pooling). Zero strides
// default to 1.
type Pool2DConfig struct {
	KernelH, KernelW int
	VPad, HPad       int
	VStride, HStride int
}

// pool2D carries the geometry shared by max and average pooling: both
// expand receptive fields over each channel independently and reduce
// along the window axis.
type pool2D struct {
	base
	hp Pool2DConfig

	kh, kw     int // bound window (0 dims resolved)
	ci, hi, wi int
	ho, wo     int
}

func newPool2D(hp Pool2DConfig, kind string) pool2D {
	if hp.VStride == 0 {
		hp.VStride = 1
	}
	if hp.HStride == 0 {
		hp.HStride = 1
	}
	if hp.KernelH < 0 || hp.KernelW < 0 {
		panic(fmt.Sprintf("%s: invalid window %dx%d", kind, hp.KernelH, hp.KernelW))
	}
	if hp.VStride <= 0 || hp.HStride <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %dx%d", kind, hp.VStride, hp.HStride))
	}
	if hp.VPad < 0 || hp.HPad < 0 {
		panic(fmt.Sprintf("%s: invalid padding %dx%d", kind, hp.VPad, hp.HPad))
	}
	return pool2D{hp: hp}
}

func (l *pool2D) initialize(prev tensor.Shape, needDx bool, id int, kind string) (int, error) {
	if len(prev) != 3 {
		return id, fmt.Errorf("%s: input shape %v is not [channels, height, width]", kind, prev)
	}
	l.id = id
	l.needDx = needDx
	l.ci, l.hi, l.wi = prev[0], prev[1], prev[2]

	l.kh, l.kw = l.hp.KernelH, l.hp.KernelW
	if l.kh == 0 {
		l.kh = l.hi
	}
	if l.kw == 0 {
		l.kw = l.wi
	}

	l.ho = cpu.OutSize(l.hi, l.kh, l.hp.VPad, l.hp.VStride)
	l.wo = cpu.OutSize(l.wi, l.kw, l.hp.HPad, l.hp.HStride)
	if l.ho <= 0 || l.wo <= 0 {
		return id, fmt.Errorf("%s: window %dx%d with padding (%d,%d) and stride (%d,%d) leaves no output for %v",
			kind, l.kh, l.kw, l.hp.VPad, l.hp.HPad, l.hp.VStride, l.hp.HStride, prev)
	}
	l.shape = tensor.Shape{l.ci, l.ho, l.wo}

	b, es, cp := l.cfg.BatchSize, l.cfg.ElemSize, l.cfg.Cost
	l.fwdTime = cost.Im2colTime(l.kh*l.kw, b*l.ho*l.wo*l.ci, es, cp)
	if needDx {
		l.bwdTime = cost.Col2imTime(l.kh*l.kw, b*l.ho*l.wo*l.ci, es, cp)
	}
	return id + 1, nil
}

// expand runs the shared forward prologue: each channel is treated as
// an independent single-channel image and expanded into a
// [kh*kw, n*ci*ho*wo] column matrix.
func (l *pool2D) expand(x *tensor.Tensor) *tensor.Tensor {
	xs := x.Shape()
	if len(xs) != 4 || xs[1] != l.ci || xs[2] != l.hi || xs[3] != l.wi {
		panic(fmt.Sprintf("pool2d: input shape %v does not match bound shape [%d %d %d]",
			xs, l.ci, l.hi, l.wi))
	}
	flat := x.Reshape(xs[0]*l.ci, 1, l.hi, l.wi)

	l.cfg.Tracer.Begin(l.id, trace.PhaseIm2col)
	cols := cpu.Im2col(flat, l.kh, l.kw, l.hp.VPad, l.hp.HPad, l.hp.VStride, l.hp.HStride)
	l.cfg.Tracer.End(l.id, trace.PhaseIm2col)
	return cols
}

// fold runs the shared backward epilogue, scattering a column matrix
// back to the input layout.
func (l *pool2D) fold(dyCols *tensor.Tensor, n int) *tensor.Tensor {
	l.cfg.Tracer.Begin(l.id, trace.PhaseCol2im)
	dx := cpu.Col2im(dyCols, n*l.ci, 1, l.hi, l.wi,
		l.kh, l.kw, l.hp.VPad, l.hp.HPad, l.hp.VStride, l.hp.HStride)
	l.cfg.Tracer.End(l.id, trace.PhaseCol2im)
	return dx.Reshape(n, l.ci, l.hi, l.wi)
}

// MaxPool2D keeps the maximum of each receptive field, remembering the
// winning position so backward can route each output gradient to
// exactly the input position that attained it.
type MaxPool2D struct {
	pool2D
	rows  []int // winning window offset per output position
	batch int
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(hp Pool2DConfig) *MaxPool2D {
	return &MaxPool2D{pool2D: newPool2D(hp, "maxpool2d")}
}

// Initialize implements Layer.
func (l *MaxPool2D) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	return l.initialize(prev, needDx, id, "maxpool2d")
}

// Forward implements Layer.
func (l *MaxPool2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.shape == nil {
		panic("maxpool2d: forward before initialize")
	}
	l.batch = x.Shape()[0]
	cols := l.expand(x)

	l.cfg.Tracer.Begin(l.id, trace.PhaseArgmax)
	maxes, rows := cpu.ArgmaxCols(cols)
	l.cfg.Tracer.End(l.id, trace.PhaseArgmax)
	l.rows = rows

	return maxes.Reshape(l.batch, l.ci, l.ho, l.wo)
}

// Backward implements Layer.
func (l *MaxPool2D) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if !l.needDx {
		return nil
	}
	if l.rows == nil {
		panic("maxpool2d: backward before forward")
	}
	n := dy.Shape()[0]
	numCols := n * l.ci * l.ho * l.wo

	dyCols := tensor.New(tensor.Shape{l.kh * l.kw, numCols})
	dd, dyd := dyCols.Data(), dy.Data()
	for j, r := range l.rows {
		dd[r*numCols+j] = dyd[j]
	}
	return l.fold(dyCols, n)
}

// AveragePool2D averages each receptive field. Backward spreads the
// output gradient uniformly across the window.
type AveragePool2D struct {
	pool2D
}

// NewAveragePool2D creates an average pooling layer.
func NewAveragePool2D(hp Pool2DConfig) *AveragePool2D {
	return &AveragePool2D{pool2D: newPool2D(hp, "avgpool2d")}
}

// Initialize implements Layer.
func (l *AveragePool2D) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	return l.initialize(prev, needDx, id, "avgpool2d")
}

// Forward implements Layer.
func (l *AveragePool2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.shape == nil {
		panic("avgpool2d: forward before initialize")
	}
	n := x.Shape()[0]
	cols := l.expand(x)

	window := l.kh * l.kw
	numCols := cols.Shape()[1]
	y := tensor.New(tensor.Shape{n, l.ci, l.ho, l.wo})
	yd, cd := y.Data(), cols.Data()
	for r := 0; r < window; r++ {
		row := cd[r*numCols : (r+1)*numCols]
		for j, v := range row {
			yd[j] += v
		}
	}
	inv := 1.0 / float64(window)
	for j := range yd {
		yd[j] *= inv
	}
	return y
}

// Backward implements Layer.
func (l *AveragePool2D) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if !l.needDx {
		return nil
	}
	n := dy.Shape()[0]
	window := l.kh * l.kw
	numCols := n * l.ci * l.ho * l.wo

	dyCols := tensor.New(tensor.Shape{window, numCols})
	dd, dyd := dyCols.Data(), dy.Data()
	inv := 1.0 / float64(window)
	for r := 0; r < window; r++ {
		row := dd[r*numCols : (r+1)*numCols]
		for j := range row {
			row[j] = dyd[j] * inv
		}
	}
	return l.fold(dyCols, n)
}
