// Package trace defines the observation surface of the computation
// engine: begin/end markers bracketing the named phases of a layer's
// forward and backward passes.
//
// Correctness never depends on whether anything observes the markers;
// the default tracer discards them.
package trace

// Phase names one computational phase inside a layer.
type Phase int

// Phases emitted by the built-in layers.
const (
	PhaseMatmul Phase = iota
	PhaseIm2col
	PhaseCol2im
	PhaseArgmax
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseMatmul:
		return "matmul"
	case PhaseIm2col:
		return "im2col"
	case PhaseCol2im:
		return "col2im"
	case PhaseArgmax:
		return "argmax"
	}
	return "unknown"
}

// Tracer receives phase markers. layerID is the globally consistent
// layer identity number assigned during initialization, stable across
// composite-block branches.
//
// Implementations must be cheap: markers bracket hot loops.
type Tracer interface {
	Begin(layerID int, phase Phase)
	End(layerID int, phase Phase)
}

// Nop discards all markers. It is the default tracer.
type Nop struct{}

// Begin implements Tracer.
func (Nop) Begin(int, Phase) {}

// End implements Tracer.
func (Nop) End(int, Phase) {}
