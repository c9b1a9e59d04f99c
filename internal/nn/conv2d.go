package nn

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/backend/cpu"
	"github.com/tandem-ml/tandem/internal/cost"
	"github.com/tandem-ml/tandem/internal/tensor"
	"github.com/tandem-ml/tandem/internal/trace"
)

// Conv2DConfig holds the structural hyperparameters of a Conv2D layer.
// Zero strides default to 1.
type Conv2DConfig struct {
	Filters          int // number of output channels
	KernelH, KernelW int
	VPad, HPad       int
	VStride, HStride int
	UseBias          bool

	// WeightsInit and BiasInit override the default Glorot/zeros
	// initializers when non-nil.
	WeightsInit Initializer
	BiasInit    Initializer
}

// Conv2D is a 2-D convolution layer over [batch, channels, height,
// width] input.
//
// Output spatial size along each axis follows
//
//	out = floor((in + 2*pad - kernel) / stride) + 1
//
// Two numerically equivalent execution paths exist; the run
// configuration selects one, and Initialize binds it as a concrete
// strategy object. Forward and backward dispatch through the bound
// strategy and never re-decide.
type Conv2D struct {
	base
	hp Conv2DConfig

	ci, hi, wi int // bound input shape
	ho, wo     int // computed output spatial size

	w *Parameter // [filters, ci, kh, kw]
	b *Parameter // [filters]

	strategy convStrategy
}

// convStrategy is the computation path resolved at Initialize. No
// strategy exists before Initialize completes, so a constructed-but-
// uninitialized layer has no callable forward/backward.
type convStrategy interface {
	forward(x *tensor.Tensor) *tensor.Tensor
	backward(dy *tensor.Tensor) *tensor.Tensor
}

// NewConv2D creates a 2-D convolution layer.
func NewConv2D(hp Conv2DConfig) *Conv2D {
	if hp.VStride == 0 {
		hp.VStride = 1
	}
	if hp.HStride == 0 {
		hp.HStride = 1
	}
	if hp.Filters <= 0 {
		panic(fmt.Sprintf("conv2d: invalid filter count %d", hp.Filters))
	}
	if hp.KernelH <= 0 || hp.KernelW <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %dx%d", hp.KernelH, hp.KernelW))
	}
	if hp.VStride <= 0 || hp.HStride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %dx%d", hp.VStride, hp.HStride))
	}
	if hp.VPad < 0 || hp.HPad < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %dx%d", hp.VPad, hp.HPad))
	}
	if hp.WeightsInit == nil {
		hp.WeightsInit = GlorotUniform
	}
	if hp.BiasInit == nil {
		hp.BiasInit = Zeros
	}
	return &Conv2D{hp: hp}
}

// Initialize implements Layer.
func (l *Conv2D) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	if len(prev) != 3 {
		return id, fmt.Errorf("conv2d: input shape %v is not [channels, height, width]", prev)
	}
	l.id = id
	l.needDx = needDx
	l.ci, l.hi, l.wi = prev[0], prev[1], prev[2]

	hp := l.hp
	l.ho = cpu.OutSize(l.hi, hp.KernelH, hp.VPad, hp.VStride)
	l.wo = cpu.OutSize(l.wi, hp.KernelW, hp.HPad, hp.HStride)
	if l.ho <= 0 || l.wo <= 0 {
		return id, fmt.Errorf("conv2d: kernel %dx%d with padding (%d,%d) and stride (%d,%d) leaves no output for %v",
			hp.KernelH, hp.KernelW, hp.VPad, hp.HPad, hp.VStride, hp.HStride, prev)
	}
	l.shape = tensor.Shape{hp.Filters, l.ho, l.wo}

	l.w = newParameter("weights",
		hp.WeightsInit(l.cfg.RNG, tensor.Shape{hp.Filters, l.ci, hp.KernelH, hp.KernelW}))
	l.params = []*Parameter{l.w}
	if hp.UseBias {
		l.b = newParameter("biases", hp.BiasInit(l.cfg.RNG, tensor.Shape{hp.Filters}))
		l.params = append(l.params, l.b)
	}

	switch l.cfg.ConvAlgo {
	case AlgoIm2col:
		l.strategy = &convIm2col{layer: l}
	case AlgoConvGemm:
		if hp.VStride != hp.HStride {
			return id, fmt.Errorf("conv2d: conv-gemm path requires equal strides, got (%d,%d)",
				hp.VStride, hp.HStride)
		}
		l.strategy = &convGemm{layer: l}
	default:
		return id, fmt.Errorf("conv2d: unknown convolution path %d", l.cfg.ConvAlgo)
	}

	bt, es, cp := l.cfg.BatchSize, l.cfg.ElemSize, l.cfg.Cost
	ckk := l.ci * hp.KernelH * hp.KernelW
	bhw := bt * l.ho * l.wo
	l.fwdTime = cost.Im2colTime(ckk, bhw, es, cp) +
		cost.MatmulTime(hp.Filters, bhw, ckk, es, cp)
	// Weight-gradient cost is always paid; the input-gradient multiply
	// and the fold only when someone upstream consumes dx.
	l.bwdTime = cost.MatmulTime(hp.Filters, ckk, bhw, es, cp)
	if needDx {
		l.bwdTime += cost.MatmulTime(ckk, bhw, hp.Filters, es, cp) +
			cost.Col2imTime(ckk, bhw, es, cp)
	}
	return id + 1, nil
}

// Forward implements Layer.
func (l *Conv2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.strategy == nil {
		panic("conv2d: forward before initialize")
	}
	xs := x.Shape()
	if len(xs) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4-D input [n,c,h,w], got %v", xs))
	}
	if xs[1] != l.ci || xs[2] != l.hi || xs[3] != l.wi {
		panic(fmt.Sprintf("conv2d: input shape %v does not match bound shape [%d %d %d]",
			xs, l.ci, l.hi, l.wi))
	}
	return l.strategy.forward(x)
}

// Backward implements Layer.
func (l *Conv2D) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if l.strategy == nil {
		panic("conv2d: backward before initialize")
	}
	return l.strategy.backward(dy)
}

// epilogue reshapes the shared [filters, n*ho*wo] product into
// [n, filters, ho, wo], adding the per-channel bias first when enabled.
func (l *Conv2D) epilogue(res *tensor.Tensor, n int) *tensor.Tensor {
	if l.hp.UseBias {
		rd, bd := res.Data(), l.b.Data().Data()
		cols := n * l.ho * l.wo
		for c, bv := range bd {
			row := rd[c*cols : (c+1)*cols]
			for j := range row {
				row[j] += bv
			}
		}
	}
	return res.Reshape(l.hp.Filters, n, l.ho, l.wo).Transpose(1, 0, 2, 3)
}

// biasGrad overwrites the bias gradient with the per-channel sum of
// dyCols [filters, n*ho*wo].
func (l *Conv2D) biasGrad(dyCols *tensor.Tensor) {
	if !l.hp.UseBias {
		return
	}
	db := l.b.Grad().Data()
	dd := dyCols.Data()
	cols := dyCols.Shape()[1]
	for c := range db {
		sum := 0.0
		for _, v := range dd[c*cols : (c+1)*cols] {
			sum += v
		}
		db[c] = sum
	}
}

// convIm2col is the expand-then-multiply path: receptive fields are
// materialized as a column matrix and convolution becomes one gemm.
type convIm2col struct {
	layer *Conv2D
	xCols *tensor.Tensor // cached expansion for the weight gradient
}

func (s *convIm2col) forward(x *tensor.Tensor) *tensor.Tensor {
	l := s.layer
	hp := l.hp
	n := x.Shape()[0]

	l.cfg.Tracer.Begin(l.id, trace.PhaseIm2col)
	s.xCols = cpu.Im2col(x, hp.KernelH, hp.KernelW, hp.VPad, hp.HPad, hp.VStride, hp.HStride)
	l.cfg.Tracer.End(l.id, trace.PhaseIm2col)

	wCols := l.w.Data().Reshape(hp.Filters, l.ci*hp.KernelH*hp.KernelW)
	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	res := l.cfg.MatMul.MatMul(wCols, s.xCols)
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)

	return l.epilogue(res, n)
}

func (s *convIm2col) backward(dy *tensor.Tensor) *tensor.Tensor {
	l := s.layer
	if s.xCols == nil {
		panic("conv2d: backward before forward")
	}
	hp := l.hp
	n := dy.Shape()[0]
	dyCols := dy.Transpose(1, 0, 2, 3).Reshape(hp.Filters, n*l.ho*l.wo)

	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	dw := l.cfg.MatMul.MatMul(dyCols, s.xCols.Transpose(1, 0))
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)
	l.w.setGrad(dw)

	l.biasGrad(dyCols)

	if !l.needDx {
		return nil
	}
	wCols := l.w.Data().Reshape(hp.Filters, l.ci*hp.KernelH*hp.KernelW)
	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	res := l.cfg.MatMul.MatMul(wCols.Transpose(1, 0), dyCols)
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)

	l.cfg.Tracer.Begin(l.id, trace.PhaseCol2im)
	dx := cpu.Col2im(res, n, l.ci, l.hi, l.wi,
		hp.KernelH, hp.KernelW, hp.VPad, hp.HPad, hp.VStride, hp.HStride)
	l.cfg.Tracer.End(l.id, trace.PhaseCol2im)
	return dx
}

// convGemm is the fused re-indexed path: the same algebra as
// expand-then-multiply computed through strided re-indexing, without
// the column matrix.
//
// The backward weight gradient reuses the fused kernel with roles
// swapped: dy acts as the filter bank sliding over the padded input,
// whose rows/columns are re-indexed through the cached reorder tables
// when the stride exceeds one.
type convGemm struct {
	layer *Conv2D
	x     *tensor.Tensor // cached input for the weight gradient
}

func (s *convGemm) forward(x *tensor.Tensor) *tensor.Tensor {
	l := s.layer
	hp := l.hp
	s.x = x

	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	res := cpu.ConvGemm(l.w.Data(), x, hp.VPad, hp.HPad, hp.VStride, hp.HStride)
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)

	return l.epilogue(res, x.Shape()[0])
}

func (s *convGemm) backward(dy *tensor.Tensor) *tensor.Tensor {
	l := s.layer
	if s.x == nil {
		panic("conv2d: backward before forward")
	}
	hp := l.hp
	n := dy.Shape()[0]

	// dW: slide dy (as filters, channel axis = batch) over the padded,
	// re-indexed input.
	cgDy := dy.Transpose(1, 0, 2, 3) // [filters, n, ho, wo]
	xPad := cpu.PadNCHW(s.x.Transpose(1, 0, 2, 3), hp.VPad, hp.HPad)
	hTable, cgVStride := cpu.ReorderTable(hp.KernelH, l.ho, hp.VStride)
	wTable, cgHStride := cpu.ReorderTable(hp.KernelW, l.wo, hp.HStride)
	xSel := cpu.SelectCols(cpu.SelectRows(xPad, hTable), wTable)

	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	dw := cpu.ConvGemm(cgDy, xSel, 0, 0, cgVStride, cgHStride)
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)
	l.w.setGrad(dw)

	dyCols := cgDy.Reshape(hp.Filters, n*l.ho*l.wo)
	l.biasGrad(dyCols)

	if !l.needDx {
		return nil
	}
	wCols := l.w.Data().Reshape(hp.Filters, l.ci*hp.KernelH*hp.KernelW)
	l.cfg.Tracer.Begin(l.id, trace.PhaseMatmul)
	res := l.cfg.MatMul.MatMul(wCols.Transpose(1, 0), dyCols)
	l.cfg.Tracer.End(l.id, trace.PhaseMatmul)

	l.cfg.Tracer.Begin(l.id, trace.PhaseCol2im)
	dx := cpu.Col2im(res, n, l.ci, l.hi, l.wi,
		hp.KernelH, hp.KernelW, hp.VPad, hp.HPad, hp.VStride, hp.HStride)
	l.cfg.Tracer.End(l.id, trace.PhaseCol2im)
	return dx
}
