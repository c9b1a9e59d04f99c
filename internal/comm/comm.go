// Package comm defines the narrow process-group capability the training
// core needs for data parallelism: reduce-sum-in-place across all
// processes of a group.
//
// Gradient averaging and batch-statistic aggregation both sit on this
// one primitive. The core never knows the transport; any message-passing
// or collective-communication layer can implement Communicator. The
// package ships a trivial single-process group and an in-process group
// used to exercise the contract.
package comm

import "errors"

// ErrAborted is returned by reductions issued against a broken group.
var ErrAborted = errors.New("comm: process group aborted")

// Request tracks one asynchronously issued reduction.
//
// The reduction may overlap other work; Wait blocks until it fully
// resolves. A reduction that did not complete on every rank reports an
// error, never a partial result.
type Request struct {
	done <-chan struct{}
	err  func() error
}

// Wait blocks until the reduction resolves and returns its outcome.
func (r *Request) Wait() error {
	<-r.done
	return r.err()
}

func resolvedRequest(err error) *Request {
	ch := make(chan struct{})
	close(ch)
	return &Request{done: ch, err: func() error { return err }}
}

// Communicator is a process group offering blocking and asynchronous
// reduce-sum-in-place.
//
// All ranks must issue the same reductions in the same order. The sum
// is computed deterministically in rank order, so every rank observes a
// bit-identical result.
type Communicator interface {
	// Rank returns this process's index within the group.
	Rank() int
	// Size returns the number of processes in the group.
	Size() int
	// AllReduceSum element-wise sums buf across all ranks and writes
	// the result back into buf on every rank. Blocking.
	AllReduceSum(buf []float64) error
	// IAllReduceSum issues the reduction asynchronously. buf must not
	// be read or written until the returned request resolves.
	IAllReduceSum(buf []float64) *Request
}

// Single is the trivial single-process group. Reductions are no-ops.
type Single struct{}

// Rank implements Communicator.
func (Single) Rank() int { return 0 }

// Size implements Communicator.
func (Single) Size() int { return 1 }

// AllReduceSum implements Communicator.
func (Single) AllReduceSum([]float64) error { return nil }

// IAllReduceSum implements Communicator.
func (Single) IAllReduceSum([]float64) *Request { return resolvedRequest(nil) }
