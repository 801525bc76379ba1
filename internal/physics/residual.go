// Package physics evaluates the wave-equation residual and the initial
// velocity of a network through exact input derivatives.
package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/autodiff"
	"wavepinn/internal/domain"
	"wavepinn/internal/model"
)

// Residual returns u_tt - c(pos)²·Σ u_ss over the spatial axes s, as an
// N×1 node. Columns of pts are [x, (y), t]. Gradient tracking is switched on
// if pts does not have it.
func Residual(net *model.Bound, pts *domain.Points, v Velocity) (*autodiff.Node, error) {
	if v == nil {
		return nil, fmt.Errorf("physics: nil velocity")
	}
	dim := pts.Dim()
	if dim < 2 {
		return nil, fmt.Errorf("%w: residual needs [x, (y), t] columns, got %d", domain.ErrShape, dim)
	}
	spatial := dim - 1
	if err := CheckDims(v, spatial); err != nil {
		return nil, err
	}
	if !pts.RequiresGrad() {
		pts.RequireGrad()
	}

	dirs := make([]int, dim)
	for k := range dirs {
		dirs[k] = k
	}
	jet, err := net.Jet(pts, dirs, true)
	if err != nil {
		return nil, fmt.Errorf("physics: residual: %w", err)
	}

	t := net.Tape()
	lap := jet.D2[0]
	for k := 1; k < spatial; k++ {
		lap = t.Add(lap, jet.D2[k])
	}
	c2 := t.Constant(speedSquared(pts, v, spatial))
	return t.Sub(jet.D2[spatial], t.Mul(c2, lap)), nil
}

// InitialDerivatives returns u and ∂u/∂t at pts, both N×1. Gradient
// tracking is switched on if pts does not have it.
func InitialDerivatives(net *model.Bound, pts *domain.Points) (u, ut *autodiff.Node, err error) {
	dim := pts.Dim()
	if dim < 2 {
		return nil, nil, fmt.Errorf("%w: initial points need [x, (y), t] columns, got %d", domain.ErrShape, dim)
	}
	if !pts.RequiresGrad() {
		pts.RequireGrad()
	}
	timeIdx := dim - 1
	jet, err := net.Jet(pts, []int{timeIdx}, false)
	if err != nil {
		return nil, nil, fmt.Errorf("physics: initial derivatives: %w", err)
	}
	return jet.U, jet.D[timeIdx], nil
}

// speedSquared evaluates c² row by row as an N×1 column.
func speedSquared(pts *domain.Points, v Velocity, spatial int) *mat.Dense {
	n := pts.Len()
	out := mat.NewDense(n, 1, nil)
	pos := make([]float64, spatial)
	for i := 0; i < n; i++ {
		for k := range pos {
			pos[k] = pts.X.At(i, k)
		}
		c := v.Evaluate(pos)
		out.Set(i, 0, c*c)
	}
	return out
}
