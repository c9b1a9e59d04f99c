package nn

import (
	"fmt"

	"github.com/tandem-ml/tandem/internal/comm"
	"github.com/tandem-ml/tandem/internal/tensor"
)

// block carries the machinery shared by the composite layers: parallel
// paths of child layers that all consume the block's input and whose
// outputs are merged into one. Children always compute input gradients,
// regardless of the block's own needDx, because every path must hand a
// gradient back to the merge.
type block struct {
	base
	paths     [][]Layer
	outShapes []tensor.Shape
}

func newBlock(kind string, paths ...[]Layer) block {
	if len(paths) == 0 {
		panic(fmt.Sprintf("%s: no paths", kind))
	}
	for i, p := range paths {
		if len(p) == 0 {
			panic(fmt.Sprintf("%s: path %d is empty", kind, i))
		}
	}
	return block{paths: paths}
}

func (b *block) bind(cfg *Config) {
	b.base.bind(cfg)
	for _, path := range b.paths {
		for _, child := range path {
			child.bind(cfg)
		}
	}
}

// initialize binds every child in every path, threading shapes within a
// path and identities across the whole subtree. The block claims id for
// itself; children are numbered id+1 onward in path order.
func (b *block) initialize(prev tensor.Shape, needDx bool, id int, kind string) (int, error) {
	b.id = id
	b.needDx = needDx
	b.outShapes = make([]tensor.Shape, len(b.paths))

	next := id + 1
	for i, path := range b.paths {
		shape := prev
		for _, child := range path {
			var err error
			next, err = child.Initialize(shape, true, next)
			if err != nil {
				return id, fmt.Errorf("%s: path %d: %w", kind, i, err)
			}
			shape = child.OutputShape()
			b.fwdTime += child.FwdTime()
			b.bwdTime += child.BwdTime()
		}
		b.outShapes[i] = shape
	}
	return next, nil
}

// runPaths pushes x through every path and returns the per-path
// outputs.
func (b *block) runPaths(x *tensor.Tensor) []*tensor.Tensor {
	outs := make([]*tensor.Tensor, len(b.paths))
	for i, path := range b.paths {
		y := x
		for _, child := range path {
			y = child.Forward(y)
		}
		outs[i] = y
	}
	return outs
}

// backPaths pushes each path's output gradient back through its layers
// in reverse and returns the summed input gradient.
func (b *block) backPaths(dys []*tensor.Tensor) *tensor.Tensor {
	var dx *tensor.Tensor
	for i, path := range b.paths {
		d := dys[i]
		for j := len(path) - 1; j >= 0; j-- {
			d = path[j].Backward(d)
		}
		if dx == nil {
			dx = d.Clone()
		} else {
			acc, dd := dx.Data(), d.Data()
			for k := range acc {
				acc[k] += dd[k]
			}
		}
	}
	return dx
}

// Parameters implements Layer.
func (b *block) Parameters() []*Parameter {
	var params []*Parameter
	for _, path := range b.paths {
		for _, child := range path {
			params = append(params, child.Parameters()...)
		}
	}
	return params
}

// ParamCount implements Layer.
func (b *block) ParamCount() int {
	n := 0
	for _, path := range b.paths {
		for _, child := range path {
			n += child.ParamCount()
		}
	}
	return n
}

// UpdateParams implements Layer.
func (b *block) UpdateParams(opt Optimizer) {
	for _, path := range b.paths {
		for _, child := range path {
			child.UpdateParams(opt)
		}
	}
}

// ReduceGradsAsync implements Layer.
func (b *block) ReduceGradsAsync() []*comm.Request {
	var reqs []*comm.Request
	for _, path := range b.paths {
		for _, child := range path {
			reqs = append(reqs, child.ReduceGradsAsync()...)
		}
	}
	return reqs
}

// AdditionBlock runs its paths on the same input and sums their
// outputs elementwise, so every path must produce the same shape.
// This is the residual-connection primitive: an identity path plus a
// transform path.
type AdditionBlock struct {
	block
}

// NewAdditionBlock creates an addition block over the given paths.
func NewAdditionBlock(paths ...[]Layer) *AdditionBlock {
	return &AdditionBlock{block: newBlock("addition", paths...)}
}

// Initialize implements Layer.
func (b *AdditionBlock) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	next, err := b.initialize(prev, needDx, id, "addition")
	if err != nil {
		return id, err
	}
	for i, s := range b.outShapes[1:] {
		if !s.Equal(b.outShapes[0]) {
			return id, fmt.Errorf("addition: path %d output %v does not match path 0 output %v",
				i+1, s, b.outShapes[0])
		}
	}
	b.shape = b.outShapes[0].Clone()
	return next, nil
}

// Forward implements Layer.
func (b *AdditionBlock) Forward(x *tensor.Tensor) *tensor.Tensor {
	if b.outShapes == nil {
		panic("addition: forward before initialize")
	}
	outs := b.runPaths(x)
	y := outs[0].Clone()
	yd := y.Data()
	for _, o := range outs[1:] {
		od := o.Data()
		for k := range yd {
			yd[k] += od[k]
		}
	}
	return y
}

// Backward implements Layer.
func (b *AdditionBlock) Backward(dy *tensor.Tensor) *tensor.Tensor {
	dys := make([]*tensor.Tensor, len(b.paths))
	for i := range dys {
		dys[i] = dy
	}
	dx := b.backPaths(dys)
	if !b.needDx {
		return nil
	}
	return dx
}

// ConcatenationBlock runs its paths on the same input and concatenates
// their outputs along the channel axis, so the paths must agree on
// every output dimension except channels. This is the inception-style
// multi-branch primitive.
type ConcatenationBlock struct {
	block
	outCo []int // per-path channel counts, in path order
}

// NewConcatenationBlock creates a concatenation block over the given
// paths.
func NewConcatenationBlock(paths ...[]Layer) *ConcatenationBlock {
	return &ConcatenationBlock{block: newBlock("concatenation", paths...)}
}

// Initialize implements Layer.
func (b *ConcatenationBlock) Initialize(prev tensor.Shape, needDx bool, id int) (int, error) {
	next, err := b.initialize(prev, needDx, id, "concatenation")
	if err != nil {
		return id, err
	}
	first := b.outShapes[0]
	if len(first) < 1 {
		return id, fmt.Errorf("concatenation: path 0 produced empty shape")
	}
	b.outCo = make([]int, len(b.paths))
	channels := 0
	for i, s := range b.outShapes {
		if len(s) != len(first) {
			return id, fmt.Errorf("concatenation: path %d output rank %d does not match path 0 rank %d",
				i, len(s), len(first))
		}
		for d := 1; d < len(s); d++ {
			if s[d] != first[d] {
				return id, fmt.Errorf("concatenation: path %d output %v differs from path 0 output %v beyond the channel axis",
					i, s, first)
			}
		}
		b.outCo[i] = s[0]
		channels += s[0]
	}
	b.shape = first.Clone()
	b.shape[0] = channels
	return next, nil
}

// Forward implements Layer.
func (b *ConcatenationBlock) Forward(x *tensor.Tensor) *tensor.Tensor {
	if b.outCo == nil {
		panic("concatenation: forward before initialize")
	}
	return tensor.Cat(b.runPaths(x), 1)
}

// Backward implements Layer.
func (b *ConcatenationBlock) Backward(dy *tensor.Tensor) *tensor.Tensor {
	dx := b.backPaths(tensor.Split(dy, 1, b.outCo))
	if !b.needDx {
		return nil
	}
	return dx
}
