package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/autodiff"
	"wavepinn/internal/domain"
)

// Layer is one affine map: out = in·W + B, W is in×out and B is 1×out.
type Layer struct {
	W *mat.Dense
	B *mat.Dense
}

// Network is a fully connected feed-forward net with a linear scalar output.
type Network struct {
	spec   Spec
	layers []Layer
	scale  []float64
	shift  []float64
}

// New builds a network with Xavier/Glorot uniform weights and zero biases.
func New(spec Spec, rng *rand.Rand) (*Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(42))
	}
	layers := make([]Layer, len(spec.Widths)-1)
	for i := range layers {
		fanIn, fanOut := spec.Widths[i], spec.Widths[i+1]
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		w := make([]float64, fanIn*fanOut)
		for j := range w {
			w[j] = (rng.Float64()*2 - 1) * limit
		}
		layers[i] = Layer{W: mat.NewDense(fanIn, fanOut, w), B: mat.NewDense(1, fanOut, nil)}
	}
	return newNetwork(spec, layers), nil
}

// FromLayers builds a network around existing parameters. The matrices are
// used as given, not copied.
func FromLayers(spec Spec, layers []Layer) (*Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(layers) != len(spec.Widths)-1 {
		return nil, fmt.Errorf("model: %d layers for widths %v", len(layers), spec.Widths)
	}
	for i, l := range layers {
		if l.W == nil || l.B == nil {
			return nil, fmt.Errorf("model: layer %d is missing parameters", i)
		}
		wr, wc := l.W.Dims()
		br, bc := l.B.Dims()
		if wr != spec.Widths[i] || wc != spec.Widths[i+1] || br != 1 || bc != spec.Widths[i+1] {
			return nil, fmt.Errorf("model: layer %d has W %dx%d, B %dx%d; want W %dx%d, B 1x%d",
				i, wr, wc, br, bc, spec.Widths[i], spec.Widths[i+1], spec.Widths[i+1])
		}
	}
	return newNetwork(spec, layers), nil
}

func newNetwork(spec Spec, layers []Layer) *Network {
	spec.Widths = append([]int(nil), spec.Widths...)
	if spec.Bounds != nil {
		spec.Bounds = append([]domain.Interval(nil), spec.Bounds...)
	}
	spec.Activation, _ = ParseActivation(string(spec.Activation))
	n := &Network{spec: spec, layers: layers}
	n.scale = make([]float64, spec.Inputs())
	n.shift = make([]float64, spec.Inputs())
	for i := range n.scale {
		n.scale[i] = 1
		if spec.Bounds != nil {
			b := spec.Bounds[i]
			n.scale[i] = 2 / b.Width()
			n.shift[i] = -2*b.Min/b.Width() - 1
		}
	}
	return n
}

// Spec returns the architecture.
func (n *Network) Spec() Spec { return n.spec }

// Layers returns the layers; the matrices are live parameters.
func (n *Network) Layers() []Layer { return n.layers }

// Params returns W0, B0, W1, B1, ... in order.
func (n *Network) Params() []*mat.Dense {
	out := make([]*mat.Dense, 0, 2*len(n.layers))
	for _, l := range n.layers {
		out = append(out, l.W, l.B)
	}
	return out
}

// NumParams counts scalar parameters.
func (n *Network) NumParams() int {
	total := 0
	for _, p := range n.Params() {
		r, c := p.Dims()
		total += r * c
	}
	return total
}

// Forward evaluates the network on the rows of x and returns an N×1 matrix.
func (n *Network) Forward(x *mat.Dense) *mat.Dense {
	tape := autodiff.NewTape()
	b := n.bind(tape, false)
	return b.forward(tape.Constant(n.normalize(x))).Value()
}

// Predict evaluates a single coordinate.
func (n *Network) Predict(p ...float64) float64 {
	return n.Forward(mat.NewDense(1, len(p), append([]float64(nil), p...))).At(0, 0)
}

func (n *Network) normalize(x *mat.Dense) *mat.Dense {
	if _, c := x.Dims(); c != n.spec.Inputs() {
		panic(fmt.Sprintf("model: input has %d columns, network expects %d", c, n.spec.Inputs()))
	}
	if n.spec.Bounds == nil {
		return x
	}
	out := &mat.Dense{}
	out.Apply(func(_, j int, v float64) float64 { return n.scale[j]*v + n.shift[j] }, x)
	return out
}

// Bind records the parameters on tape as variables so that gradients of
// any loss built from the bound network reach them.
func (n *Network) Bind(tape *autodiff.Tape) *Bound {
	return n.bind(tape, true)
}

func (n *Network) bind(tape *autodiff.Tape, variables bool) *Bound {
	b := &Bound{net: n, tape: tape, params: make([]*autodiff.Node, 0, 2*len(n.layers))}
	for _, p := range n.Params() {
		if variables {
			b.params = append(b.params, tape.Variable(p))
		} else {
			b.params = append(b.params, tape.Constant(p))
		}
	}
	return b
}

// Bound is a network whose parameters are recorded on a tape.
type Bound struct {
	net    *Network
	tape   *autodiff.Tape
	params []*autodiff.Node
}

// Network returns the underlying network.
func (b *Bound) Network() *Network { return b.net }

// Tape returns the tape the parameters live on.
func (b *Bound) Tape() *autodiff.Tape { return b.tape }

// Params returns the parameter nodes in Network.Params order.
func (b *Bound) Params() []*autodiff.Node { return b.params }

// Forward evaluates u on pts. Gradient tracking is not required.
func (b *Bound) Forward(pts *domain.Points) (*autodiff.Node, error) {
	if err := b.check(pts); err != nil {
		return nil, err
	}
	return b.forward(b.tape.Constant(b.net.normalize(pts.X))), nil
}

func (b *Bound) forward(a *autodiff.Node) *autodiff.Node {
	last := len(b.params)/2 - 1
	for l := 0; l <= last; l++ {
		z := b.tape.AddRow(b.tape.MatMul(a, b.params[2*l]), b.params[2*l+1])
		if l == last {
			return z
		}
		a, _, _ = b.activate(z, false, false)
	}
	return a
}

func (b *Bound) check(pts *domain.Points) error {
	if pts == nil || pts.X == nil {
		return fmt.Errorf("model: nil points")
	}
	if pts.Dim() != b.net.spec.Inputs() {
		return fmt.Errorf("%w: got %d, network expects %d", domain.ErrShape, pts.Dim(), b.net.spec.Inputs())
	}
	return nil
}

// activate returns σ(z) and, when asked, σ'(z) and σ''(z).
func (b *Bound) activate(z *autodiff.Node, first, second bool) (h, d1, d2 *autodiff.Node) {
	t := b.tape
	switch b.net.spec.Activation {
	case Sine:
		h = t.Sin(z)
		if first {
			d1 = t.Cos(z)
		}
		if second {
			d2 = t.Scale(h, -1)
		}
	default:
		h = t.Tanh(z)
		if first {
			d1 = t.Affine(t.Square(h), -1, 1)
		}
		if second {
			d2 = t.Mul(t.Scale(h, -2), d1)
		}
	}
	return h, d1, d2
}

// Jet holds u and its derivatives with respect to the input coordinates.
// D[k] is ∂u/∂x_k and D2[k] is ∂²u/∂x_k²; entries for directions that were
// not requested are nil. Every entry is N×1.
type Jet struct {
	U  *autodiff.Node
	D  []*autodiff.Node
	D2 []*autodiff.Node
}

// Jet evaluates u on pts together with first derivatives along dirs and,
// if second is set, the pure second derivatives along the same directions.
//
// Input derivatives are carried forward through each layer alongside the
// activations; all of it is recorded on the tape, so the result can be
// differentiated with respect to the parameters.
func (b *Bound) Jet(pts *domain.Points, dirs []int, second bool) (*Jet, error) {
	if err := b.check(pts); err != nil {
		return nil, err
	}
	if !pts.RequiresGrad() {
		return nil, ErrNoGrad
	}
	t := b.tape
	rows, dim := pts.X.Dims()
	for _, k := range dirs {
		if k < 0 || k >= dim {
			return nil, fmt.Errorf("model: derivative direction %d out of range [0, %d)", k, dim)
		}
	}

	a := t.Constant(b.net.normalize(pts.X))
	da := make([]*autodiff.Node, dim)
	d2a := make([]*autodiff.Node, dim)
	for _, k := range dirs {
		seed := mat.NewDense(rows, dim, nil)
		for i := 0; i < rows; i++ {
			seed.Set(i, k, b.net.scale[k])
		}
		da[k] = t.Constant(seed)
	}

	last := len(b.params)/2 - 1
	for l := 0; l <= last; l++ {
		w, bias := b.params[2*l], b.params[2*l+1]
		z := t.AddRow(t.MatMul(a, w), bias)
		dz := make([]*autodiff.Node, dim)
		d2z := make([]*autodiff.Node, dim)
		for _, k := range dirs {
			dz[k] = t.MatMul(da[k], w)
			if second && d2a[k] != nil {
				d2z[k] = t.MatMul(d2a[k], w)
			}
		}
		if l == last {
			a, da, d2a = z, dz, d2z
			break
		}
		h, s1, s2 := b.activate(z, true, second)
		for _, k := range dirs {
			da[k] = t.Mul(s1, dz[k])
			if second {
				curv := t.Mul(s2, t.Square(dz[k]))
				if d2z[k] != nil {
					curv = t.Add(curv, t.Mul(s1, d2z[k]))
				}
				d2a[k] = curv
			}
		}
		a = h
	}

	jet := &Jet{U: a, D: make([]*autodiff.Node, dim), D2: make([]*autodiff.Node, dim)}
	for _, k := range dirs {
		jet.D[k] = da[k]
		if second {
			jet.D2[k] = d2a[k]
			if jet.D2[k] == nil {
				// A single affine layer has no curvature.
				jet.D2[k] = t.Constant(mat.NewDense(rows, 1, nil))
			}
		}
	}
	return jet, nil
}
