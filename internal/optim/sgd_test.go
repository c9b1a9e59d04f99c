package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandem-ml/tandem/internal/nn"
)

func initNet(t *testing.T) *nn.Network {
	t.Helper()
	net := nn.New(nil,
		nn.NewInput(4),
		nn.NewFC(3, true),
	)
	require.NoError(t, net.Initialize())
	return net
}

func TestSGDVanillaStep(t *testing.T) {
	net := initNet(t)
	p := net.Parameters()[0]
	before := append([]float64(nil), p.Data().Data()...)
	for i := range p.Grad().Data() {
		p.Grad().Data()[i] = 2
	}

	s := NewSGD(SGDConfig{LR: 0.1})
	net.Update(s)

	for i, v := range p.Data().Data() {
		assert.InDelta(t, before[i]-0.2, v, 1e-12)
	}
}

func TestSGDMomentumAccumulates(t *testing.T) {
	net := initNet(t)
	p := net.Parameters()[0]
	before := append([]float64(nil), p.Data().Data()...)
	for i := range p.Grad().Data() {
		p.Grad().Data()[i] = 1
	}

	s := NewSGD(SGDConfig{LR: 0.1, Momentum: 0.5})
	// Step 1: v = 1, delta 0.1. Step 2: v = 1.5, delta 0.15.
	net.Update(s)
	net.Update(s)

	for i, v := range p.Data().Data() {
		assert.InDelta(t, before[i]-0.25, v, 1e-12)
	}
}

func TestSGDUpdatesInPlace(t *testing.T) {
	net := initNet(t)
	p := net.Parameters()[0]
	storage := p.Data().Data()

	s := NewSGD(SGDConfig{LR: 0.1})
	net.Update(s)

	// Same backing slice after the step.
	assert.Equal(t, &storage[0], &p.Data().Data()[0])
}

func TestSGDDefaultsAndValidation(t *testing.T) {
	s := NewSGD(SGDConfig{})
	assert.Equal(t, 0.01, s.LR())

	s.SetLR(0.5)
	assert.Equal(t, 0.5, s.LR())

	assert.Panics(t, func() { NewSGD(SGDConfig{LR: -1}) })
	assert.Panics(t, func() { NewSGD(SGDConfig{Momentum: 1}) })
}

func TestSGDDescendsQuadratic(t *testing.T) {
	// Minimize |W|^2 through the Parameter mapping: grad = 2W.
	net := nn.New(nil, nn.NewInput(2), nn.NewFC(2, false))
	require.NoError(t, net.Initialize())
	p := net.Parameters()[0]

	s := NewSGD(SGDConfig{LR: 0.1, Momentum: 0.9})
	norm := func() float64 {
		n := 0.0
		for _, v := range p.Data().Data() {
			n += v * v
		}
		return n
	}
	start := norm()
	for i := 0; i < 500; i++ {
		for j, v := range p.Data().Data() {
			p.Grad().Data()[j] = 2 * v
		}
		net.Update(s)
	}
	assert.Less(t, norm(), start*1e-6)
}
