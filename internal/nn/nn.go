// Package nn implements the layer abstraction and forward/backward
// computation engine of the Tandem training core.
//
// The package provides:
//   - Layer interface: two-stage lifecycle (construct with
//     hyperparameters, then Initialize binds shapes, allocates
//     parameters and resolves computation strategies)
//   - Concrete layers: Input, FC, Conv2D (two execution paths),
//     MaxPool2D, AveragePool2D, Dropout, Flatten, BatchNorm
//   - Composite blocks: AdditionBlock, ConcatenationBlock
//   - Network: ordered container walking the layer graph
//
// Per process, forward/backward is single-threaded and sequential.
// Inter-process data parallelism is expressed through comm.Communicator:
// gradients are averaged and batch-norm statistics aggregated with one
// reduce-sum-in-place primitive.
package nn

import (
	"math/rand"

	"github.com/tandem-ml/tandem/internal/backend/blas"
	"github.com/tandem-ml/tandem/internal/comm"
	"github.com/tandem-ml/tandem/internal/cost"
	"github.com/tandem-ml/tandem/internal/tensor"
	"github.com/tandem-ml/tandem/internal/trace"
)

// Mode selects training or evaluation semantics for mode-dependent
// layers (Dropout, BatchNorm).
type Mode int

// Run modes.
const (
	Train Mode = iota
	Eval
)

// ConvAlgo selects the convolution execution path. The choice is
// resolved once per layer at Initialize, never per call.
type ConvAlgo int

// Convolution execution paths.
const (
	// AlgoIm2col expands receptive fields into a column matrix and
	// multiplies (expand-then-multiply).
	AlgoIm2col ConvAlgo = iota
	// AlgoConvGemm computes the same algebra through strided
	// re-indexing without materializing the column matrix (fused
	// re-indexed multiply). Requires equal vertical/horizontal stride.
	AlgoConvGemm
)

// Config is the shared run configuration referenced by every layer of
// one network. Collaborating subsystems (matmul backend, tracer,
// process group) plug in here.
type Config struct {
	// BatchSize is the nominal local batch size, used only by the
	// analytic cost model. Layers tolerate any actual batch size.
	BatchSize int
	// MatMul is the matrix-multiply backend. Defaults to the BLAS
	// backend.
	MatMul tensor.MatMul
	// Tracer receives phase markers. Defaults to the nop tracer.
	Tracer trace.Tracer
	// Comm is the process group for data-parallel synchronization.
	// Defaults to the single-process group.
	Comm comm.Communicator
	// Cost holds the machine inputs of the analytic cost model.
	Cost cost.Params
	// ElemSize is the element size in bytes fed to the cost model.
	ElemSize int
	// Mode selects Train or Eval semantics.
	Mode Mode
	// ConvAlgo selects the convolution execution path for the run.
	ConvAlgo ConvAlgo
	// SyncStats aggregates batch-norm statistics across the process
	// group so they reflect the global mini-batch.
	SyncStats bool
	// RNG drives parameter initialization and dropout masks.
	RNG *rand.Rand
}

// NewConfig returns a Config with all collaborators defaulted.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.MatMul == nil {
		c.MatMul = blas.New()
	}
	if c.Tracer == nil {
		c.Tracer = trace.Nop{}
	}
	if c.Comm == nil {
		c.Comm = comm.Single{}
	}
	if c.Cost == (cost.Params{}) {
		c.Cost = cost.Default()
	}
	if c.ElemSize <= 0 {
		c.ElemSize = 8
	}
	if c.RNG == nil {
		c.RNG = rand.New(rand.NewSource(1)) //nolint:gosec // weight init, not security-critical
	}
}

// Optimizer is the external collaborator applying in-place parameter
// updates. The core never computes a learning rate or update rule; it
// only hands the optimizer each layer's parameter/gradient mapping.
type Optimizer interface {
	Update(params ...*Parameter)
}
