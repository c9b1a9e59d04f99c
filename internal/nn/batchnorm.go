package nn

import (
	"fmt"
	"math"

	"github.com/tandem-ml/tandem/internal/tensor"
)

// BatchNormConfig holds the structural hyperparameters of a BatchNorm
// layer. Zero values default to gamma=1, beta=0, momentum=0.9,
// epsilon=1e-5.
type BatchNormConfig struct {
	Gamma    float64 // initial scale
	Beta     float64 // initial shift
	Momentum float64 // running-estimate momentum
	Epsilon  float64 // variance floor
}

// BatchNorm normalizes activations per feature over the batch (and, for
// spatial input, over the spatial axes too), then applies a learned
// scale and shift.
//
// In a data-parallel run with Config.SyncStats enabled, the sample
// count and the sums feeding mean/variance are summed across the
// process group before dividing, so the statistics reflect the global
// mini-batch rather than the local shard. Evaluation mode normalizes
// from the momentum-weighted running estimates with no communication
// and is stateless across calls.
type BatchNorm struct {
	base
	hp BatchNormConfig

	spatial        bool
	features       int
	hi, wi         int
	gamma, beta    *Parameter
	runningMean    *tensor.Tensor
	runningVar     *tensor.Tensor

	std []float64      // cached per-feature stddev from forward
	xn  *tensor.Tensor // cached normalized activations, channel-last
}

// NewBatchNorm creates a batch normalization layer.
func NewBatchNorm(hp BatchNormConfig) *BatchNorm {
	if hp.Gamma == 0 {
		hp.Gamma = 1
	}
	if hp.Momentum == 0 {
		hp.Momentum = 0.9
	}
	if hp.Momentum < 0 || hp.Momentum >= 1 {
		panic(fmt.Sprintf("batchnorm: invalid momentum %v", hp.Momentum))
	}
	if hp.Epsilon == 0 {
		hp.Epsilon = 1e-5
	}
	if hp.Epsilon < 0 {
		panic(fmt.Sprintf("batchnorm: invalid epsilon %v", hp.Epsilon))
	}
	return &BatchNorm{hp: hp}
}

// Initialize implements Layer.
func (l *BatchNorm) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	if len(prev) == 0 {
		return id, fmt.Errorf("batchnorm: empty input shape")
	}
	l.id = id
	l.needDx = needDx
	l.shape = prev.Clone()

	l.spatial = len(prev) > 2
	if l.spatial {
		l.features, l.hi, l.wi = prev[0], prev[1], prev[2]
	} else {
		l.features = prev[0]
	}

	fs := tensor.Shape{l.features}
	l.gamma = newParameter("gamma", tensor.Full(fs, l.hp.Gamma))
	l.beta = newParameter("beta", tensor.Full(fs, l.hp.Beta))
	l.params = []*Parameter{l.gamma, l.beta}
	l.runningMean = tensor.Zeros(fs)
	l.runningVar = tensor.Full(fs, 1)
	return id + 1, nil
}

// RunningStats returns the running mean and variance estimates used in
// evaluation mode.
func (l *BatchNorm) RunningStats() (mean, variance *tensor.Tensor) {
	return l.runningMean, l.runningVar
}

// channelLast flattens batch and spatial axes per feature:
// [n, c, h, w] -> [n*h*w, c]. Non-spatial input passes through.
func (l *BatchNorm) channelLast(t *tensor.Tensor) *tensor.Tensor {
	if !l.spatial {
		return t
	}
	n := t.Shape()[0]
	return t.Transpose(0, 2, 3, 1).Reshape(n*l.hi*l.wi, l.features)
}

// channelFirst undoes channelLast for a batch of n samples.
func (l *BatchNorm) channelFirst(t *tensor.Tensor, n int) *tensor.Tensor {
	if !l.spatial {
		return t
	}
	return t.Reshape(n, l.hi, l.wi, l.features).Transpose(0, 3, 1, 2)
}

// reduceStats sums buf across the process group. A failed or partial
// reduction would silently desynchronize normalization across shards,
// so it is fatal to the step.
func (l *BatchNorm) reduceStats(buf []float64) {
	if err := l.cfg.Comm.AllReduceSum(buf); err != nil {
		panic(fmt.Sprintf("batchnorm: statistic reduction failed: %v", err))
	}
}

// Forward implements Layer.
func (l *BatchNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	if l.gamma == nil {
		panic("batchnorm: forward before initialize")
	}
	n := x.Shape()[0]
	x2 := l.channelLast(x)
	rows := x2.Shape()[0]
	f := l.features

	gd, bd := l.gamma.Data().Data(), l.beta.Data().Data()
	y2 := tensor.New(tensor.Shape{rows, f})
	xd, yd := x2.Data(), y2.Data()

	if l.cfg.Mode == Train {
		sync := l.cfg.SyncStats && l.cfg.Comm.Size() > 1

		count := float64(rows)
		if sync {
			nbuf := []float64{count}
			l.reduceStats(nbuf)
			count = nbuf[0]
		}

		// Mean over the global mini-batch.
		mu := make([]float64, f)
		for i := 0; i < rows; i++ {
			row := xd[i*f : (i+1)*f]
			for j, v := range row {
				mu[j] += v
			}
		}
		if sync {
			l.reduceStats(mu)
		}
		for j := range mu {
			mu[j] /= count
		}

		// Variance of the centered activations, same aggregation.
		xc := make([]float64, rows*f)
		variance := make([]float64, f)
		for i := 0; i < rows; i++ {
			for j := 0; j < f; j++ {
				d := xd[i*f+j] - mu[j]
				xc[i*f+j] = d
				variance[j] += d * d
			}
		}
		if sync {
			l.reduceStats(variance)
		}

		l.std = make([]float64, f)
		for j := range variance {
			variance[j] /= count
			l.std[j] = math.Sqrt(variance[j] + l.hp.Epsilon)
		}

		l.xn = tensor.New(tensor.Shape{rows, f})
		xnd := l.xn.Data()
		for i := 0; i < rows; i++ {
			for j := 0; j < f; j++ {
				xn := xc[i*f+j] / l.std[j]
				xnd[i*f+j] = xn
				yd[i*f+j] = gd[j]*xn + bd[j]
			}
		}

		mom := l.hp.Momentum
		rm, rv := l.runningMean.Data(), l.runningVar.Data()
		for j := 0; j < f; j++ {
			rm[j] = mom*rm[j] + (1-mom)*mu[j]
			rv[j] = mom*rv[j] + (1-mom)*variance[j]
		}
	} else {
		rm, rv := l.runningMean.Data(), l.runningVar.Data()
		for j := 0; j < f; j++ {
			std := math.Sqrt(rv[j] + l.hp.Epsilon)
			for i := 0; i < rows; i++ {
				yd[i*f+j] = gd[j]*(xd[i*f+j]-rm[j])/std + bd[j]
			}
		}
	}

	return l.channelFirst(y2, n)
}

// Backward implements Layer.
func (l *BatchNorm) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if l.xn == nil {
		panic("batchnorm: backward before training forward")
	}
	n := dy.Shape()[0]
	dy2 := l.channelLast(dy)
	rows := dy2.Shape()[0]
	f := l.features

	dyd, xnd := dy2.Data(), l.xn.Data()
	dg, db := l.gamma.Grad().Data(), l.beta.Grad().Data()
	for j := 0; j < f; j++ {
		dg[j], db[j] = 0, 0
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < f; j++ {
			dg[j] += dyd[i*f+j] * xnd[i*f+j]
			db[j] += dyd[i*f+j]
		}
	}

	if !l.needDx {
		return nil
	}

	gd := l.gamma.Data().Data()
	dx2 := tensor.New(tensor.Shape{rows, f})
	dxd := dx2.Data()
	nf := float64(rows)
	for j := 0; j < f; j++ {
		scale := gd[j] / (l.std[j] * nf)
		for i := 0; i < rows; i++ {
			dxd[i*f+j] = scale * (nf*dyd[i*f+j] - xnd[i*f+j]*dg[j] - db[j])
		}
	}
	return l.channelFirst(dx2, n)
}
