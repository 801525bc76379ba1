package autodiff

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Shape mismatches panic with mat.ErrShape, as gonum does.

// MatMul returns a·b.
func (t *Tape) MatMul(a, b *Node) *Node {
	out := &mat.Dense{}
	out.Mul(a.value, b.value)
	return t.derived(out, func(g *mat.Dense) {
		if a.needsGrad {
			ga := &mat.Dense{}
			ga.Mul(g, b.value.T())
			a.accumulate(ga)
		}
		if b.needsGrad {
			gb := &mat.Dense{}
			gb.Mul(a.value.T(), g)
			b.accumulate(gb)
		}
	}, a, b)
}

// AddRow adds the 1×c row vector to every row of a.
func (t *Tape) AddRow(a, row *Node) *Node {
	r, c := a.Dims()
	if rr, rc := row.Dims(); rr != 1 || rc != c {
		panic(mat.ErrShape)
	}
	out := mat.NewDense(r, c, nil)
	bias := row.value.RawRowView(0)
	for i := 0; i < r; i++ {
		floats.AddTo(out.RawRowView(i), a.value.RawRowView(i), bias)
	}
	return t.derived(out, func(g *mat.Dense) {
		a.accumulate(g)
		if row.needsGrad {
			sum := make([]float64, c)
			for i := 0; i < r; i++ {
				floats.Add(sum, g.RawRowView(i))
			}
			row.accumulate(mat.NewDense(1, c, sum))
		}
	}, a, row)
}

// Add returns a+b.
func (t *Tape) Add(a, b *Node) *Node {
	out := &mat.Dense{}
	out.Add(a.value, b.value)
	return t.derived(out, func(g *mat.Dense) {
		a.accumulate(g)
		b.accumulate(g)
	}, a, b)
}

// Sub returns a-b.
func (t *Tape) Sub(a, b *Node) *Node {
	out := &mat.Dense{}
	out.Sub(a.value, b.value)
	return t.derived(out, func(g *mat.Dense) {
		a.accumulate(g)
		if b.needsGrad {
			gb := &mat.Dense{}
			gb.Scale(-1, g)
			b.accumulate(gb)
		}
	}, a, b)
}

// Mul returns the elementwise product a⊙b.
func (t *Tape) Mul(a, b *Node) *Node {
	out := &mat.Dense{}
	out.MulElem(a.value, b.value)
	return t.derived(out, func(g *mat.Dense) {
		if a.needsGrad {
			ga := &mat.Dense{}
			ga.MulElem(g, b.value)
			a.accumulate(ga)
		}
		if b.needsGrad {
			gb := &mat.Dense{}
			gb.MulElem(g, a.value)
			b.accumulate(gb)
		}
	}, a, b)
}

// Scale returns s·a.
func (t *Tape) Scale(a *Node, s float64) *Node {
	out := &mat.Dense{}
	out.Scale(s, a.value)
	return t.derived(out, func(g *mat.Dense) {
		ga := &mat.Dense{}
		ga.Scale(s, g)
		a.accumulate(ga)
	}, a)
}

// Affine returns s·a + c elementwise.
func (t *Tape) Affine(a *Node, s, c float64) *Node {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return s*v + c }, a.value)
	return t.derived(out, func(g *mat.Dense) {
		ga := &mat.Dense{}
		ga.Scale(s, g)
		a.accumulate(ga)
	}, a)
}

// Square returns a⊙a.
func (t *Tape) Square(a *Node) *Node {
	out := &mat.Dense{}
	out.MulElem(a.value, a.value)
	return t.derived(out, func(g *mat.Dense) {
		ga := &mat.Dense{}
		ga.MulElem(g, a.value)
		ga.Scale(2, ga)
		a.accumulate(ga)
	}, a)
}

// Tanh applies tanh elementwise.
func (t *Tape) Tanh(a *Node) *Node {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, a.value)
	return t.derived(out, func(g *mat.Dense) {
		ga := &mat.Dense{}
		ga.Apply(func(i, j int, y float64) float64 { return g.At(i, j) * (1 - y*y) }, out)
		a.accumulate(ga)
	}, a)
}

// Sin applies sin elementwise.
func (t *Tape) Sin(a *Node) *Node {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return math.Sin(v) }, a.value)
	return t.derived(out, func(g *mat.Dense) {
		ga := &mat.Dense{}
		ga.Apply(func(i, j int, x float64) float64 { return g.At(i, j) * math.Cos(x) }, a.value)
		a.accumulate(ga)
	}, a)
}

// Cos applies cos elementwise.
func (t *Tape) Cos(a *Node) *Node {
	out := &mat.Dense{}
	out.Apply(func(_, _ int, v float64) float64 { return math.Cos(v) }, a.value)
	return t.derived(out, func(g *mat.Dense) {
		ga := &mat.Dense{}
		ga.Apply(func(i, j int, x float64) float64 { return -g.At(i, j) * math.Sin(x) }, a.value)
		a.accumulate(ga)
	}, a)
}

// Col extracts column j as an r×1 node.
func (t *Tape) Col(a *Node, j int) *Node {
	r, c := a.Dims()
	out := mat.NewDense(r, 1, mat.Col(nil, j, a.value))
	return t.derived(out, func(g *mat.Dense) {
		ga := mat.NewDense(r, c, nil)
		ga.SetCol(j, mat.Col(nil, 0, g))
		a.accumulate(ga)
	}, a)
}

// Mean reduces a to the 1×1 average of its elements.
func (t *Tape) Mean(a *Node) *Node {
	r, c := a.Dims()
	n := float64(r * c)
	out := mat.NewDense(1, 1, []float64{mat.Sum(a.value) / n})
	return t.derived(out, func(g *mat.Dense) {
		ga := mat.NewDense(r, c, nil)
		fill := g.At(0, 0) / n
		for i := 0; i < r; i++ {
			row := ga.RawRowView(i)
			for j := range row {
				row[j] = fill
			}
		}
		a.accumulate(ga)
	}, a)
}

// MeanSquare returns mean(a⊙a).
func (t *Tape) MeanSquare(a *Node) *Node {
	return t.Mean(t.Square(a))
}

// WeightedSum returns Σ w[i]·terms[i] for same-shaped nodes, accumulated
// left to right.
func (t *Tape) WeightedSum(terms []*Node, w []float64) *Node {
	if len(terms) == 0 || len(terms) != len(w) {
		panic("autodiff: weighted sum needs one weight per term")
	}
	acc := t.Scale(terms[0], w[0])
	for i := 1; i < len(terms); i++ {
		acc = t.Add(acc, t.Scale(terms[i], w[i]))
	}
	return acc
}
