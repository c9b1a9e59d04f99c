package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-ml/tandem/internal/tensor"
	"github.com/tandem-ml/tandem/internal/trace"
)

// ramp fills deterministically so two layers initialized independently
// hold identical parameters.
func ramp(_ *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	t := tensor.New(shape)
	d := t.Data()
	for i := range d {
		d[i] = 0.25*float64(i%7) - 0.5
	}
	return t
}

func TestConv2DInitialize(t *testing.T) {
	cfg := testConfig()
	l := NewConv2D(Conv2DConfig{Filters: 8, KernelH: 3, KernelW: 3, VPad: 1, HPad: 1, UseBias: true})
	initLayer(t, l, cfg, tensor.Shape{3, 28, 28}, true)

	assert.Equal(t, tensor.Shape{8, 28, 28}, l.OutputShape())
	assert.Equal(t, 8*3*3*3+8, l.ParamCount())
	assert.Greater(t, l.FwdTime(), 0.0)
}

func TestConv2DStridedOutputShape(t *testing.T) {
	cfg := testConfig()
	l := NewConv2D(Conv2DConfig{Filters: 2, KernelH: 3, KernelW: 3, VStride: 2, HStride: 2})
	initLayer(t, l, cfg, tensor.Shape{1, 9, 9}, false)
	assert.Equal(t, tensor.Shape{2, 4, 4}, l.OutputShape())
}

func TestConv2DInitializeErrors(t *testing.T) {
	cfg := testConfig()

	l := NewConv2D(Conv2DConfig{Filters: 1, KernelH: 3, KernelW: 3})
	l.bind(cfg)
	_, err := l.Initialize(tensor.Shape{4}, false, 0)
	assert.Error(t, err, "non-spatial input")

	l = NewConv2D(Conv2DConfig{Filters: 1, KernelH: 9, KernelW: 9})
	l.bind(cfg)
	_, err = l.Initialize(tensor.Shape{1, 5, 5}, false, 0)
	assert.Error(t, err, "kernel larger than input")

	gemmCfg := testConfig()
	gemmCfg.ConvAlgo = AlgoConvGemm
	l = NewConv2D(Conv2DConfig{Filters: 1, KernelH: 3, KernelW: 3, VStride: 2, HStride: 1})
	l.bind(gemmCfg)
	_, err = l.Initialize(tensor.Shape{1, 9, 9}, false, 0)
	assert.Error(t, err, "conv-gemm with unequal strides")
}

func TestConv2DConstructorPanics(t *testing.T) {
	assert.Panics(t, func() { NewConv2D(Conv2DConfig{Filters: 0, KernelH: 3, KernelW: 3}) })
	assert.Panics(t, func() { NewConv2D(Conv2DConfig{Filters: 1, KernelH: 0, KernelW: 3}) })
	assert.Panics(t, func() { NewConv2D(Conv2DConfig{Filters: 1, KernelH: 3, KernelW: 3, VPad: -1}) })
}

// The two execution paths implement one semantic: identical outputs and
// identical gradients on the same weights and data.
func TestConv2DStrategiesAgree(t *testing.T) {
	configs := []Conv2DConfig{
		{Filters: 4, KernelH: 3, KernelW: 3, UseBias: true},
		{Filters: 3, KernelH: 3, KernelW: 3, VPad: 1, HPad: 1, UseBias: true},
		{Filters: 2, KernelH: 3, KernelW: 3, VPad: 1, HPad: 1, VStride: 2, HStride: 2},
		{Filters: 5, KernelH: 5, KernelW: 5, VPad: 2, HPad: 2, VStride: 3, HStride: 3, UseBias: true},
	}
	in := tensor.Shape{3, 11, 11}
	rng := rand.New(rand.NewSource(77))

	for _, hp := range configs {
		hp.WeightsInit = ramp
		hp.BiasInit = Ones

		i2cCfg := testConfig()
		i2cCfg.ConvAlgo = AlgoIm2col
		a := NewConv2D(hp)
		initLayer(t, a, i2cCfg, in, true)

		cgCfg := testConfig()
		cgCfg.ConvAlgo = AlgoConvGemm
		b := NewConv2D(hp)
		initLayer(t, b, cgCfg, in, true)

		x := tensor.Randn(rng, append(tensor.Shape{2}, in...))
		ya, yb := a.Forward(x), b.Forward(x)
		require.Equal(t, ya.Shape(), yb.Shape(), "%+v", hp)
		for i := range ya.Data() {
			require.InDelta(t, ya.Data()[i], yb.Data()[i], 1e-9, "%+v forward %d", hp, i)
		}

		dy := tensor.Randn(rng, ya.Shape())
		dxa, dxb := a.Backward(dy), b.Backward(dy)
		require.Equal(t, dxa.Shape(), dxb.Shape())
		for i := range dxa.Data() {
			require.InDelta(t, dxa.Data()[i], dxb.Data()[i], 1e-9, "%+v dx %d", hp, i)
		}

		ga, gb := a.Parameters(), b.Parameters()
		require.Equal(t, len(ga), len(gb))
		for p := range ga {
			for i := range ga[p].Grad().Data() {
				require.InDelta(t, ga[p].Grad().Data()[i], gb[p].Grad().Data()[i], 1e-9,
					"%+v param %s %d", hp, ga[p].Name(), i)
			}
		}
	}
}

func TestConv2DGradients(t *testing.T) {
	for _, algo := range []ConvAlgo{AlgoIm2col, AlgoConvGemm} {
		cfg := testConfig()
		cfg.ConvAlgo = algo
		l := NewConv2D(Conv2DConfig{Filters: 2, KernelH: 3, KernelW: 3, VPad: 1, HPad: 1, VStride: 2, HStride: 2, UseBias: true})
		initLayer(t, l, cfg, tensor.Shape{2, 7, 7}, true)

		x := tensor.Randn(cfg.RNG, tensor.Shape{2, 2, 7, 7})
		y := l.Forward(x)
		probe := tensor.Randn(cfg.RNG, y.Shape())
		dx := l.Backward(probe)
		require.NotNil(t, dx)

		checkGrad(t, x.Data(), func() *tensor.Tensor { return l.Forward(x) },
			probe.Data(), dx.Data(), 1e-5)

		for _, p := range l.Parameters() {
			analytic := append([]float64(nil), p.Grad().Data()...)
			checkGrad(t, p.Data().Data(), func() *tensor.Tensor { return l.Forward(x) },
				probe.Data(), analytic, 1e-5)
		}
	}
}

// recordingTracer captures the phase marker sequence.
type recordingTracer struct {
	events []string
}

func (r *recordingTracer) Begin(_ int, p trace.Phase) { r.events = append(r.events, "begin "+p.String()) }
func (r *recordingTracer) End(_ int, p trace.Phase)   { r.events = append(r.events, "end "+p.String()) }

func TestConv2DTracePhases(t *testing.T) {
	tr := &recordingTracer{}
	cfg := testConfig()
	cfg.Tracer = tr
	l := NewConv2D(Conv2DConfig{Filters: 1, KernelH: 2, KernelW: 2})
	initLayer(t, l, cfg, tensor.Shape{1, 4, 4}, true)

	x := tensor.Randn(cfg.RNG, tensor.Shape{1, 1, 4, 4})
	y := l.Forward(x)
	assert.Equal(t, []string{
		"begin im2col", "end im2col",
		"begin matmul", "end matmul",
	}, tr.events)

	tr.events = nil
	l.Backward(tensor.Randn(cfg.RNG, y.Shape()))
	assert.Equal(t, []string{
		"begin matmul", "end matmul",
		"begin matmul", "end matmul",
		"begin col2im", "end col2im",
	}, tr.events)
}

func TestConv2DForwardBeforeInitializePanics(t *testing.T) {
	l := NewConv2D(Conv2DConfig{Filters: 1, KernelH: 2, KernelW: 2})
	assert.Panics(t, func() { l.Forward(tensor.Zeros(tensor.Shape{1, 1, 4, 4})) })
}

func TestConv2DInputShapeMismatchPanics(t *testing.T) {
	cfg := testConfig()
	l := NewConv2D(Conv2DConfig{Filters: 1, KernelH: 2, KernelW: 2})
	initLayer(t, l, cfg, tensor.Shape{1, 4, 4}, false)
	assert.Panics(t, func() { l.Forward(tensor.Zeros(tensor.Shape{1, 2, 4, 4})) })
}
