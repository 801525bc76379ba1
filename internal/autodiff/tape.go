// Package autodiff records matrix operations on a tape and propagates
// sensitivities backward through them.
//
// Only the operations needed by dense feed-forward networks and their input
// derivatives are provided: affine maps, elementwise arithmetic, tanh, sin,
// cos and reductions. Every node holds a *mat.Dense value. Gradients are
// exact; Backward may be called once per tape.
package autodiff

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNotScalar is returned by Backward for outputs that are not 1×1.
var ErrNotScalar = errors.New("autodiff: backward requires a 1x1 output")

// Tape records nodes in creation order.
type Tape struct {
	nodes []*Node
	done  bool
}

// NewTape returns an empty tape.
func NewTape() *Tape {
	return &Tape{}
}

// Node is a recorded value. Nodes are created through Tape methods.
type Node struct {
	tape      *Tape
	value     *mat.Dense
	grad      *mat.Dense
	needsGrad bool
	backward  func(g *mat.Dense)
}

// Value returns the forward value. Callers must not modify it.
func (n *Node) Value() *mat.Dense { return n.value }

// Grad returns the accumulated gradient, or nil if Backward never reached n.
func (n *Node) Grad() *mat.Dense { return n.grad }

// Dims returns the value shape.
func (n *Node) Dims() (int, int) { return n.value.Dims() }

// Scalar returns the value of a 1×1 node.
func (n *Node) Scalar() float64 { return n.value.At(0, 0) }

// NeedsGrad reports whether a variable contributes to n.
func (n *Node) NeedsGrad() bool { return n.needsGrad }

// Len returns the number of recorded nodes.
func (t *Tape) Len() int { return len(t.nodes) }

// Variable records a leaf whose gradient is wanted. The value is shared,
// not copied, so parameters can be updated in place once the tape is spent.
func (t *Tape) Variable(v *mat.Dense) *Node {
	return t.record(v, true, nil)
}

// Constant records a leaf that receives no gradient.
func (t *Tape) Constant(v *mat.Dense) *Node {
	return t.record(v, false, nil)
}

func (t *Tape) record(v *mat.Dense, needsGrad bool, backward func(g *mat.Dense)) *Node {
	n := &Node{tape: t, value: v, needsGrad: needsGrad, backward: backward}
	t.nodes = append(t.nodes, n)
	return n
}

// derived records an op result; backward runs only if an input needs grad.
func (t *Tape) derived(v *mat.Dense, backward func(g *mat.Dense), inputs ...*Node) *Node {
	needs := false
	for _, in := range inputs {
		if in.tape != t {
			panic("autodiff: node belongs to another tape")
		}
		needs = needs || in.needsGrad
	}
	if !needs {
		backward = nil
	}
	return t.record(v, needs, backward)
}

// Backward seeds out with 1 and propagates gradients to every variable
// reachable from it.
func (t *Tape) Backward(out *Node) error {
	if out.tape != t {
		return errors.New("autodiff: output belongs to another tape")
	}
	if r, c := out.Dims(); r != 1 || c != 1 {
		return fmt.Errorf("%w (got %dx%d)", ErrNotScalar, r, c)
	}
	if t.done {
		return errors.New("autodiff: backward already ran on this tape")
	}
	t.done = true
	if !out.needsGrad {
		return nil
	}
	out.grad = mat.NewDense(1, 1, []float64{1})
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if n.grad == nil || n.backward == nil {
			continue
		}
		n.backward(n.grad)
	}
	return nil
}

func (n *Node) accumulate(g *mat.Dense) {
	if !n.needsGrad {
		return
	}
	if n.grad == nil {
		n.grad = mat.DenseCopyOf(g)
		return
	}
	n.grad.Add(n.grad, g)
}
