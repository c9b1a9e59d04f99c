package comm

import (
	"fmt"
	"sync"
)

// LocalGroup coordinates N in-process ranks. Each rank runs on its own
// goroutine and issues the same reductions in the same order; the group
// matches them up, sums in rank order and writes the result back into
// every rank's buffer.
//
// LocalGroup exists to exercise the data-parallel contract (gradient
// averaging, batch-statistic aggregation) without a real transport.
type LocalGroup struct {
	size int

	mu   sync.Mutex
	ops  map[int]*collective
	next []int // per-rank index of the next reduction to issue
	err  error // set once the group is broken
}

type collective struct {
	bufs   [][]float64 // indexed by rank
	joined int
	done   chan struct{}
	err    error
}

// LocalComm is one rank's handle on a LocalGroup.
type LocalComm struct {
	group *LocalGroup
	rank  int
}

// NewLocalGroup creates a group of n ranks and returns one handle per
// rank.
func NewLocalGroup(n int) []*LocalComm {
	if n <= 0 {
		panic(fmt.Sprintf("comm: invalid group size %d", n))
	}
	g := &LocalGroup{
		size: n,
		ops:  make(map[int]*collective),
		next: make([]int, n),
	}
	comms := make([]*LocalComm, n)
	for i := range comms {
		comms[i] = &LocalComm{group: g, rank: i}
	}
	return comms
}

// Rank implements Communicator.
func (c *LocalComm) Rank() int { return c.rank }

// Size implements Communicator.
func (c *LocalComm) Size() int { return c.group.size }

// AllReduceSum implements Communicator.
func (c *LocalComm) AllReduceSum(buf []float64) error {
	return c.IAllReduceSum(buf).Wait()
}

// IAllReduceSum implements Communicator.
func (c *LocalComm) IAllReduceSum(buf []float64) *Request {
	g := c.group
	g.mu.Lock()

	if g.err != nil {
		g.mu.Unlock()
		return resolvedRequest(g.err)
	}

	idx := g.next[c.rank]
	g.next[c.rank]++

	op, ok := g.ops[idx]
	if !ok {
		op = &collective{
			bufs: make([][]float64, g.size),
			done: make(chan struct{}),
		}
		g.ops[idx] = op
	}
	op.bufs[c.rank] = buf
	op.joined++

	if op.joined == g.size {
		g.complete(idx, op)
	}
	g.mu.Unlock()

	return &Request{done: op.done, err: func() error { return op.err }}
}

// complete finishes a fully joined collective. Called with the group
// lock held.
func (g *LocalGroup) complete(idx int, op *collective) {
	delete(g.ops, idx)

	n := len(op.bufs[0])
	for _, b := range op.bufs[1:] {
		if len(b) != n {
			op.err = fmt.Errorf("comm: reduction buffer length mismatch: %d vs %d", len(b), n)
			close(op.done)
			return
		}
	}

	// Sum in rank order so every rank sees a bit-identical result.
	sum := make([]float64, n)
	for _, b := range op.bufs {
		for i, v := range b {
			sum[i] += v
		}
	}
	for _, b := range op.bufs {
		copy(b, sum)
	}
	close(op.done)
}

// Abort breaks the group: all pending and future reductions fail with
// err (ErrAborted when err is nil). A broken group never recovers; the
// training step that observes the failure must not proceed.
func (c *LocalComm) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	g := c.group
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return
	}
	g.err = err
	for idx, op := range g.ops {
		delete(g.ops, idx)
		op.err = err
		close(op.done)
	}
}
