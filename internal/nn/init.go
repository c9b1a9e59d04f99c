package nn

import (
	"math"
	"math/rand"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// Initializer allocates and fills one parameter tensor at Initialize
// time.
type Initializer func(rng *rand.Rand, shape tensor.Shape) *tensor.Tensor

// GlorotUniform draws from U(-b, b) with b = sqrt(6/(fanIn+fanOut)).
//
// Fans are derived from the shape: (fanIn, fanOut) for 2-D weights, and
// channels x receptive field for 4-D convolution filters
// [out, in, kh, kw].
func GlorotUniform(rng *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	fanIn, fanOut := fans(shape)
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(rng, shape, -bound, bound)
}

// Zeros fills with zeros. Common for biases and shift parameters.
func Zeros(_ *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	return tensor.Zeros(shape)
}

// Ones fills with ones. Common for scale parameters and running
// variances.
func Ones(_ *rand.Rand, shape tensor.Shape) *tensor.Tensor {
	return tensor.Full(shape, 1)
}

func fans(shape tensor.Shape) (fanIn, fanOut int) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return shape[0], shape[0]
	case 2:
		return shape[0], shape[1]
	default:
		receptive := 1
		for _, d := range shape[2:] {
			receptive *= d
		}
		return shape[1] * receptive, shape[0] * receptive
	}
}
