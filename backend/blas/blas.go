// Copyright 2026 Tandem ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package blas provides the gonum-backed matmul backend. It wraps
// tensor storage in gonum mat.Dense views without copying.
package blas

import (
	internalblas "github.com/tandem-ml/tandem/internal/backend/blas"
	"github.com/tandem-ml/tandem/tensor"
)

// Backend is the gonum matmul backend.
type Backend = internalblas.Backend

// Compile-time check that Backend implements tensor.MatMul.
var _ tensor.MatMul = (*Backend)(nil)

// New creates a gonum backend.
func New() *Backend {
	return internalblas.New()
}
