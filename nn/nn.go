// Copyright 2026 Tandem ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layer abstraction and network container of
// the Tandem training core.
//
// Layers follow a two-stage lifecycle: construct with structural
// hyperparameters, then Network.Initialize binds input shapes,
// allocates parameters and resolves computation strategies. After that
// Forward and Backward walk the graph per mini-batch.
//
// Example:
//
//	import (
//	    "github.com/tandem-ml/tandem/nn"
//	    "github.com/tandem-ml/tandem/optim"
//	)
//
//	net := nn.NewNetwork(nil,
//	    nn.NewInput(1, 28, 28),
//	    nn.NewConv2D(nn.Conv2DConfig{Filters: 8, KernelH: 3, KernelW: 3}),
//	    nn.NewMaxPool2D(nn.Pool2DConfig{KernelH: 2, KernelW: 2, VStride: 2, HStride: 2}),
//	    nn.NewFlatten(),
//	    nn.NewFC(10, true),
//	)
//	if err := net.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
package nn

import (
	"github.com/tandem-ml/tandem/internal/nn"
)

// Mode selects training or evaluation semantics.
type Mode = nn.Mode

// Run modes.
const (
	Train = nn.Train
	Eval  = nn.Eval
)

// ConvAlgo selects the convolution execution path for a run.
type ConvAlgo = nn.ConvAlgo

// Convolution execution paths.
const (
	AlgoIm2col   = nn.AlgoIm2col
	AlgoConvGemm = nn.AlgoConvGemm
)

// Config is the shared run configuration referenced by every layer of
// one network.
type Config = nn.Config

// NewConfig returns a Config with all collaborators defaulted.
func NewConfig() *Config { return nn.NewConfig() }

// Layer is the contract every network component implements.
type Layer = nn.Layer

// Parameter is a named trainable tensor paired with its gradient
// buffer.
type Parameter = nn.Parameter

// Optimizer applies in-place parameter updates. See the optim package
// for the reference implementation.
type Optimizer = nn.Optimizer

// Initializer draws initial parameter values for a shape.
type Initializer = nn.Initializer

// Built-in initializers.
var (
	GlorotUniform Initializer = nn.GlorotUniform
	Zeros         Initializer = nn.Zeros
	Ones          Initializer = nn.Ones
)

// Network is an ordered container of layers sharing one run
// configuration.
type Network = nn.Network

// NewNetwork creates a network over the given layers. A nil cfg gets
// all defaults.
func NewNetwork(cfg *Config, layers ...Layer) *Network { return nn.New(cfg, layers...) }

// Input declares the per-sample input shape of a network.
type Input = nn.Input

// NewInput creates the input layer for samples of the given dimensions
// (batch axis excluded).
func NewInput(dims ...int) *Input { return nn.NewInput(dims...) }

// FC is a fully connected layer.
type FC = nn.FC

// NewFC creates a fully connected layer with the given output width.
func NewFC(units int, useBias bool) *FC { return nn.NewFC(units, useBias) }

// Conv2DConfig holds the structural hyperparameters of a Conv2D layer.
type Conv2DConfig = nn.Conv2DConfig

// Conv2D is a 2-D convolution layer with two interchangeable execution
// paths, selected per run by Config.ConvAlgo.
type Conv2D = nn.Conv2D

// NewConv2D creates a convolution layer.
func NewConv2D(hp Conv2DConfig) *Conv2D { return nn.NewConv2D(hp) }

// Pool2DConfig holds the structural hyperparameters of a pooling layer.
type Pool2DConfig = nn.Pool2DConfig

// MaxPool2D keeps the maximum of each receptive field.
type MaxPool2D = nn.MaxPool2D

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(hp Pool2DConfig) *MaxPool2D { return nn.NewMaxPool2D(hp) }

// AveragePool2D averages each receptive field.
type AveragePool2D = nn.AveragePool2D

// NewAveragePool2D creates an average pooling layer.
func NewAveragePool2D(hp Pool2DConfig) *AveragePool2D { return nn.NewAveragePool2D(hp) }

// Dropout zeroes activations with a fixed probability during training.
type Dropout = nn.Dropout

// NewDropout creates a dropout layer.
func NewDropout(rate float64) *Dropout { return nn.NewDropout(rate) }

// Flatten collapses all per-sample axes into one feature axis.
type Flatten = nn.Flatten

// NewFlatten creates a flatten layer.
func NewFlatten() *Flatten { return nn.NewFlatten() }

// BatchNormConfig holds the structural hyperparameters of a BatchNorm
// layer.
type BatchNormConfig = nn.BatchNormConfig

// BatchNorm normalizes activations per feature over the mini-batch.
type BatchNorm = nn.BatchNorm

// NewBatchNorm creates a batch normalization layer.
func NewBatchNorm(hp BatchNormConfig) *BatchNorm { return nn.NewBatchNorm(hp) }

// AdditionBlock sums the outputs of parallel layer paths elementwise.
type AdditionBlock = nn.AdditionBlock

// NewAdditionBlock creates an addition block over the given paths.
func NewAdditionBlock(paths ...[]Layer) *AdditionBlock { return nn.NewAdditionBlock(paths...) }

// ConcatenationBlock concatenates the outputs of parallel layer paths
// along the channel axis.
type ConcatenationBlock = nn.ConcatenationBlock

// NewConcatenationBlock creates a concatenation block over the given
// paths.
func NewConcatenationBlock(paths ...[]Layer) *ConcatenationBlock {
	return nn.NewConcatenationBlock(paths...)
}
