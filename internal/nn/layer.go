package nn

import (
	"github.com/tandem-ml/tandem/internal/comm"
	"github.com/tandem-ml/tandem/internal/tensor"
)

// Layer is the contract every network component implements.
//
// Lifecycle: CONSTRUCTED -> INITIALIZED -> {FORWARD_READY <->
// BACKWARD_READY}. A layer is constructed with structural
// hyperparameters only; Initialize binds it to its input shape,
// allocates parameters, resolves the computation strategy and computes
// cost estimates. No layer exposes a callable forward/backward before
// Initialize completes.
type Layer interface {
	// Initialize binds the layer to the output shape of its
	// predecessor (batch axis excluded) and assigns its identity
	// number. id is the next available identity; the layer takes it
	// (composite blocks also number their children) and returns the
	// next identity after its subtree. needDx=false lets the layer
	// skip input-gradient computation entirely.
	//
	// Shape mismatches, negative computed output sizes and unsupported
	// configurations are reported here and are fatal to the run.
	// Called exactly once per run, before any Forward or Backward.
	Initialize(prev tensor.Shape, needDx bool, id int) (next int, err error)

	// Forward computes the output batch for x and caches whatever the
	// matching Backward needs. The batch size may vary between calls
	// (shrinking last batch) without reinitialization.
	Forward(x *tensor.Tensor) *tensor.Tensor

	// Backward consumes the output gradient dy (never mutating it),
	// fully overwrites the layer's parameter gradients, and returns
	// the input gradient, or nil when needDx is false.
	Backward(dy *tensor.Tensor) *tensor.Tensor

	// OutputShape returns the output shape excluding the batch axis.
	// Valid after Initialize.
	OutputShape() tensor.Shape

	// Parameters returns the layer's named parameter/gradient pairs
	// for external optimizers and reductions. Composite blocks return
	// the parameters of every child layer.
	Parameters() []*Parameter

	// ParamCount returns the total number of trainable scalars.
	ParamCount() int

	// FwdTime and BwdTime return the analytic cost estimates computed
	// at Initialize. Informational only.
	FwdTime() float64
	BwdTime() float64

	// UpdateParams hands the layer's parameters to the optimizer.
	// Composite blocks forward the call to every child layer.
	UpdateParams(opt Optimizer)

	// ReduceGradsAsync issues one asynchronous reduce-sum per
	// parameter gradient on the run's process group and returns the
	// outstanding requests. The gradients must not be read again until
	// every request has resolved.
	ReduceGradsAsync() []*comm.Request

	// bind attaches the shared run configuration. Called by the
	// Network (or an enclosing block) before Initialize.
	bind(cfg *Config)
}

// base carries the state shared by all layers: run configuration,
// identity, bound shapes, parameters and cost estimates. Concrete
// layers embed it and override what they need.
type base struct {
	cfg    *Config
	id     int
	shape  tensor.Shape
	needDx bool

	params  []*Parameter
	fwdTime float64
	bwdTime float64
}

func (b *base) bind(cfg *Config) { b.cfg = cfg }

// ID returns the layer's identity number, stable across composite-block
// branches. Valid after Initialize.
func (b *base) ID() int { return b.id }

// OutputShape implements Layer.
func (b *base) OutputShape() tensor.Shape { return b.shape }

// Parameters implements Layer.
func (b *base) Parameters() []*Parameter { return b.params }

// ParamCount implements Layer.
func (b *base) ParamCount() int {
	n := 0
	for _, p := range b.params {
		n += p.Data().NumElements()
	}
	return n
}

// FwdTime implements Layer.
func (b *base) FwdTime() float64 { return b.fwdTime }

// BwdTime implements Layer.
func (b *base) BwdTime() float64 { return b.bwdTime }

// UpdateParams implements Layer.
func (b *base) UpdateParams(opt Optimizer) {
	if len(b.params) > 0 {
		opt.Update(b.params...)
	}
}

// ReduceGradsAsync implements Layer.
func (b *base) ReduceGradsAsync() []*comm.Request {
	if len(b.params) == 0 {
		return nil
	}
	reqs := make([]*comm.Request, 0, len(b.params))
	for _, p := range b.params {
		reqs = append(reqs, b.cfg.Comm.IAllReduceSum(p.Grad().Data()))
	}
	return reqs
}
