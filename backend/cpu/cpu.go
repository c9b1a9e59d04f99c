// Copyright 2026 Tandem ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the native Go matmul backend with row-parallel
// execution.
package cpu

import (
	internalcpu "github.com/tandem-ml/tandem/internal/backend/cpu"
	"github.com/tandem-ml/tandem/tensor"
)

// Backend is the native matmul backend.
type Backend = internalcpu.Backend

// Compile-time check that Backend implements tensor.MatMul.
var _ tensor.MatMul = (*Backend)(nil)

// New creates a native backend parallelizing over all CPUs.
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a single-threaded native backend, useful for
// deterministic profiling.
func NewSequential() *Backend {
	return internalcpu.NewSequential()
}
