// Package optim provides the reference optimizer exercising the
// parameter/gradient mapping contract of the nn package. Update rules
// beyond SGD are out of scope for the training core.
package optim

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/nn"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Updates are applied in place through the Parameter mapping; SGD never
// allocates or replaces parameter storage.
type SGD struct {
	lr         float64
	momentum   float64
	velocities map[*nn.Parameter][]float64
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float64 // learning rate (default 0.01)
	Momentum float64 // momentum factor, range [0, 1) (default 0)
}

// NewSGD creates an SGD optimizer.
func NewSGD(cfg SGDConfig) *SGD {
	if cfg.LR == 0 {
		cfg.LR = 0.01
	}
	if cfg.LR < 0 {
		panic(fmt.Sprintf("sgd: invalid learning rate %v", cfg.LR))
	}
	if cfg.Momentum < 0 || cfg.Momentum >= 1 {
		panic(fmt.Sprintf("sgd: invalid momentum %v", cfg.Momentum))
	}
	return &SGD{
		lr:         cfg.LR,
		momentum:   cfg.Momentum,
		velocities: make(map[*nn.Parameter][]float64),
	}
}

// Update implements nn.Optimizer.
func (s *SGD) Update(params ...*nn.Parameter) {
	for _, p := range params {
		pd, gd := p.Data().Data(), p.Grad().Data()
		if s.momentum == 0 {
			for i := range pd {
				pd[i] -= s.lr * gd[i]
			}
			continue
		}

		v, ok := s.velocities[p]
		if !ok {
			v = make([]float64, len(pd))
			s.velocities[p] = v
		}
		for i := range pd {
			v[i] = s.momentum*v[i] + gd[i]
			pd[i] -= s.lr * v[i]
		}
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 { return s.lr }

// SetLR updates the learning rate, for scheduling during training.
func (s *SGD) SetLR(lr float64) { s.lr = lr }
