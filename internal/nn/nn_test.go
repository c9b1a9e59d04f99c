package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// testConfig returns a deterministic single-process config.
func testConfig() *Config {
	cfg := NewConfig()
	cfg.RNG = rand.New(rand.NewSource(1234))
	return cfg
}

// initLayer binds and initializes a standalone layer for direct tests.
func initLayer(t *testing.T, l Layer, cfg *Config, prev tensor.Shape, needDx bool) {
	t.Helper()
	l.bind(cfg)
	next, err := l.Initialize(prev, needDx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, next)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// checkGrad verifies an analytic gradient against central finite
// differences of the scalar objective L(vec) = <forward output, probe>.
// vec is the buffer the objective reads through (an input copy or a
// parameter's storage); eval must run the forward pass and return the
// output.
func checkGrad(t *testing.T, vec []float64, eval func() *tensor.Tensor, probe []float64, analytic []float64, tol float64) {
	t.Helper()
	objective := func(v []float64) float64 {
		old := make([]float64, len(vec))
		copy(old, vec)
		copy(vec, v)
		y := eval()
		copy(vec, old)
		return dot(y.Data(), probe)
	}

	x0 := make([]float64, len(vec))
	copy(x0, vec)
	numeric := fd.Gradient(nil, objective, x0, &fd.Settings{
		Formula: fd.Central,
		Step:    1e-6,
	})

	require.Len(t, analytic, len(numeric))
	for i := range numeric {
		require.InDelta(t, numeric[i], analytic[i], tol, "component %d", i)
	}
}
