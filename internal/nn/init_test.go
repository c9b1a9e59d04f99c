package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tandem-ml/tandem/internal/tensor"
)

func TestGlorotUniformBound2D(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	w := GlorotUniform(rng, tensor.Shape{100, 50})
	bound := math.Sqrt(6.0 / 150.0)
	for _, v := range w.Data() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}
}

func TestGlorotUniformBound4D(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	// [out=8, in=3, 5, 5]: fanIn = 3*25, fanOut = 8*25.
	w := GlorotUniform(rng, tensor.Shape{8, 3, 5, 5})
	bound := math.Sqrt(6.0 / float64(3*25+8*25))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}
}

func TestZerosOnes(t *testing.T) {
	z := Zeros(nil, tensor.Shape{3})
	o := Ones(nil, tensor.Shape{3})
	assert.Equal(t, []float64{0, 0, 0}, z.Data())
	assert.Equal(t, []float64{1, 1, 1}, o.Data())
}

func TestGlorotUniformDeterministicPerSeed(t *testing.T) {
	a := GlorotUniform(rand.New(rand.NewSource(5)), tensor.Shape{4, 4})
	b := GlorotUniform(rand.New(rand.NewSource(5)), tensor.Shape{4, 4})
	assert.True(t, a.Equal(b))
}
