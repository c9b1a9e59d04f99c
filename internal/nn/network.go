package nn

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/comm"
	"github.com/tandem-ml/tandem/internal/tensor"
)

// Network is an ordered container of layers sharing one run
// configuration. It owns shape and identity threading at Initialize and
// walks the layers forward and backward at run time; it never inspects
// what the layers compute.
type Network struct {
	cfg    *Config
	layers []Layer
	ready  bool
}

// New creates a network over the given layers. A nil cfg gets all
// defaults; a partially filled cfg has its zero fields defaulted.
func New(cfg *Config, layers ...Layer) *Network {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.fillDefaults()
	return &Network{cfg: cfg, layers: layers}
}

// Config returns the shared run configuration.
func (n *Network) Config() *Config { return n.cfg }

// Layers returns the network's layers in order.
func (n *Network) Layers() []Layer { return n.layers }

// Initialize binds every layer in order: the first layer must be an
// Input declaring the sample shape, each subsequent layer receives its
// predecessor's output shape, and identity numbers are threaded through
// the whole graph starting at 0. The first non-input layer skips
// input-gradient computation since nothing consumes it.
func (n *Network) Initialize() error {
	if len(n.layers) == 0 {
		return fmt.Errorf("network: no layers")
	}
	if _, ok := n.layers[0].(*Input); !ok {
		return fmt.Errorf("network: first layer must be an input layer, got %T", n.layers[0])
	}

	id := 0
	var shape tensor.Shape
	for i, l := range n.layers {
		l.bind(n.cfg)
		var err error
		id, err = l.Initialize(shape, i > 1, id)
		if err != nil {
			return fmt.Errorf("network: layer %d (%T): %w", i, l, err)
		}
		shape = l.OutputShape()
	}
	n.ready = true
	return nil
}

// SetMode switches the run between training and evaluation semantics.
func (n *Network) SetMode(m Mode) { n.cfg.Mode = m }

// OutputShape returns the final layer's output shape excluding the
// batch axis. Valid after Initialize.
func (n *Network) OutputShape() tensor.Shape {
	return n.layers[len(n.layers)-1].OutputShape()
}

// Forward pushes a batch through every layer in order and returns the
// final activations.
func (n *Network) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !n.ready {
		panic("network: forward before initialize")
	}
	for _, l := range n.layers {
		x = l.Forward(x)
	}
	return x
}

// Backward pushes the output gradient through every layer in reverse,
// overwriting each layer's parameter gradients. The returned input
// gradient is nil for any network with at least one hidden layer.
func (n *Network) Backward(dy *tensor.Tensor) *tensor.Tensor {
	if !n.ready {
		panic("network: backward before initialize")
	}
	for i := len(n.layers) - 1; i >= 0; i-- {
		dy = n.layers[i].Backward(dy)
	}
	return dy
}

// SyncGradients averages every parameter gradient across the process
// group. Reductions are issued asynchronously back to front, mirroring
// the order gradients become final during Backward, then awaited
// together. Any failed reduction aborts with no scaling applied, since
// the buffers are in an unspecified state.
func (n *Network) SyncGradients() error {
	if !n.ready {
		panic("network: sync before initialize")
	}
	size := n.cfg.Comm.Size()
	if size <= 1 {
		return nil
	}

	var reqs []*comm.Request
	for i := len(n.layers) - 1; i >= 0; i-- {
		reqs = append(reqs, n.layers[i].ReduceGradsAsync()...)
	}
	for _, r := range reqs {
		if err := r.Wait(); err != nil {
			return fmt.Errorf("network: gradient reduction: %w", err)
		}
	}

	inv := 1 / float64(size)
	for _, l := range n.layers {
		for _, p := range l.Parameters() {
			g := p.Grad().Data()
			for k := range g {
				g[k] *= inv
			}
		}
	}
	return nil
}

// Update hands every layer's parameters to the optimizer.
func (n *Network) Update(opt Optimizer) {
	for _, l := range n.layers {
		l.UpdateParams(opt)
	}
}

// Parameters returns all parameter/gradient pairs in layer order.
func (n *Network) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range n.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// ParamCount returns the total number of trainable scalars.
func (n *Network) ParamCount() int {
	total := 0
	for _, l := range n.layers {
		total += l.ParamCount()
	}
	return total
}

// FwdTime returns the summed analytic forward cost estimate.
func (n *Network) FwdTime() float64 {
	total := 0.0
	for _, l := range n.layers {
		total += l.FwdTime()
	}
	return total
}

// BwdTime returns the summed analytic backward cost estimate.
func (n *Network) BwdTime() float64 {
	total := 0.0
	for _, l := range n.layers {
		total += l.BwdTime()
	}
	return total
}
