// Copyright 2026 Tandem ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the reference optimizer for the Tandem
// training core.
package optim

import (
	"github.com/tandem-ml/tandem/internal/optim"
)

// SGD implements stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer.
//
// Example:
//
//	opt := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	net.Backward(dy)
//	net.Update(opt)
func NewSGD(cfg SGDConfig) *SGD {
	return optim.NewSGD(cfg)
}
