package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/domain"
)

// Counts sets how many points each region receives per batch.
type Counts struct {
	// IC is the number of initial-condition points at t = t_min.
	IC int
	// BC is the number of points on each boundary edge.
	BC int
	// PDE is the number of interior collocation points.
	PDE int
}

// Validate checks every count is positive.
func (c Counts) Validate() error {
	if c.IC <= 0 {
		return fmt.Errorf("dataset: n_ic must be > 0 (got %d)", c.IC)
	}
	if c.BC <= 0 {
		return fmt.Errorf("dataset: n_bc must be > 0 (got %d)", c.BC)
	}
	if c.PDE <= 0 {
		return fmt.Errorf("dataset: n_pde must be > 0 (got %d)", c.PDE)
	}
	return nil
}

// Pulse widths of the initial displacement exp(-a·r²).
const (
	pulseWidth1D = 100.0
	pulseWidth2D = 50.0
)

// Edge is one boundary side with its Dirichlet targets.
type Edge struct {
	Name   string
	Points *domain.Points
	Target *mat.Dense
}

// Batch is one epoch's worth of training points.
type Batch struct {
	Collocation *domain.Points
	Initial     *domain.Points
	U0          *mat.Dense
	V0          *mat.Dense
	Edges       []Edge
}

// Size returns the total number of points in the batch.
func (b *Batch) Size() int {
	n := b.Collocation.Len() + b.Initial.Len()
	for _, e := range b.Edges {
		n += e.Points.Len()
	}
	return n
}

var errNilRNG = errors.New("dataset: nil random source")

// Generate draws a fresh batch over d: uniform collocation points with
// gradient tracking, initial points at t_min carrying the centred pulse
// and zero velocity, and zero-valued boundary points on every edge.
func Generate(d domain.Domain, c Counts, rng *rand.Rand) (*Batch, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errNilRNG
	}

	b := &Batch{}
	b.Initial, b.U0, b.V0 = initialPoints(d, c.IC, rng)
	b.Edges = boundaryEdges(d, c.BC, rng)
	b.Collocation = collocationPoints(d, c.PDE, rng)
	return b, nil
}

func collocationPoints(d domain.Domain, n int, rng *rand.Rand) *domain.Points {
	axes := d.Axes()
	x := mat.NewDense(n, len(axes), nil)
	for j, iv := range axes {
		x.SetCol(j, uniform(rng, n, iv))
	}
	return domain.NewPoints(x, true)
}

func initialPoints(d domain.Domain, n int, rng *rand.Rand) (*domain.Points, *mat.Dense, *mat.Dense) {
	x := mat.NewDense(n, d.Dims(), nil)
	for j, iv := range d.Spatial {
		x.SetCol(j, uniform(rng, n, iv))
	}
	x.SetCol(d.TimeIndex(), constant(n, d.Time.Min))

	u0 := mat.NewDense(n, 1, nil)
	pos := make([]float64, d.SpatialDims())
	for i := 0; i < n; i++ {
		for j := range pos {
			pos[j] = x.At(i, j)
		}
		u0.Set(i, 0, InitialPulse(d, pos))
	}
	return domain.NewPoints(x, true), u0, mat.NewDense(n, 1, nil)
}

// boundaryEdges builds the Dirichlet edges. All edges share one time draw;
// opposite edges share the draw of their free spatial coordinate.
func boundaryEdges(d domain.Domain, n int, rng *rand.Rand) []Edge {
	t := uniform(rng, n, d.Time)
	ti := d.TimeIndex()
	edge := func(name string, fixedAxis int, fixed float64, free []float64) Edge {
		x := mat.NewDense(n, d.Dims(), nil)
		x.SetCol(fixedAxis, constant(n, fixed))
		if free != nil {
			x.SetCol(1-fixedAxis, free)
		}
		x.SetCol(ti, t)
		return Edge{Name: name, Points: domain.NewPoints(x, false), Target: mat.NewDense(n, 1, nil)}
	}

	xi := d.Spatial[0]
	if d.SpatialDims() == 1 {
		return []Edge{
			edge("left", 0, xi.Min, nil),
			edge("right", 0, xi.Max, nil),
		}
	}
	yi := d.Spatial[1]
	ySides := uniform(rng, n, yi)
	xSides := uniform(rng, n, xi)
	return []Edge{
		edge("left", 0, xi.Min, ySides),
		edge("right", 0, xi.Max, ySides),
		edge("bottom", 1, yi.Min, xSides),
		edge("top", 1, yi.Max, xSides),
	}
}

// InitialPulse is the initial displacement exp(-a·|pos - centre|²), with
// a = 100 on one spatial axis and a = 50 on two. It is exactly 1 at the
// domain centre.
func InitialPulse(d domain.Domain, pos []float64) float64 {
	a := pulseWidth1D
	if d.SpatialDims() == 2 {
		a = pulseWidth2D
	}
	r2 := 0.0
	for i, c := range d.Center() {
		diff := pos[i] - c
		r2 += diff * diff
	}
	return math.Exp(-a * r2)
}

func uniform(rng *rand.Rand, n int, iv domain.Interval) []float64 {
	out := make([]float64, n)
	w := iv.Width()
	for i := range out {
		out[i] = iv.Min + rng.Float64()*w
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
