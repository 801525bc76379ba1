package loss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/autodiff"
	"wavepinn/internal/dataset"
	"wavepinn/internal/domain"
	"wavepinn/internal/model"
	"wavepinn/internal/physics"
)

func TestCombineWeightsTotalButNotReportedIC(t *testing.T) {
	w := Weights{PDE: 1.0, ICU: 1.0, ICV: 0.1, BC: 1.0}
	c := w.Combine(Terms{PDE: 2.0, ICU: 1.0, ICV: 0.5, BC: 3.0})

	assert.InDelta(t, 6.05, c.Total, 1e-12)
	assert.InDelta(t, 1.5, c.IC, 1e-12)
	assert.Equal(t, 2.0, c.PDE)
	assert.Equal(t, 3.0, c.BC)
}

func newBatch(t *testing.T, spatial int) (*dataset.Batch, domain.Domain) {
	t.Helper()
	axes := []domain.Interval{{Min: 0, Max: 1}}
	if spatial == 2 {
		axes = append(axes, domain.Interval{Min: 0, Max: 1})
	}
	d, err := domain.New(domain.Interval{Min: 0, Max: 1}, axes...)
	require.NoError(t, err)
	b, err := dataset.Generate(d, dataset.Counts{IC: 16, BC: 8, PDE: 32}, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	return b, d
}

func TestComposeMatchesManualTerms(t *testing.T) {
	b, _ := newBatch(t, 1)
	net, err := model.New(model.Spec{Widths: []int{2, 6, 6, 1}}, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	w := Weights{PDE: 1, ICU: 2, ICV: 0.1, BC: 0.5}
	v := physics.LinearIn1D{Base: 1, Grad: 0.5}

	tape := autodiff.NewTape()
	total, c, err := Compose(net.Bind(tape), b, v, w)
	require.NoError(t, err)
	require.Equal(t, c.Total, total.Scalar())

	// The boundary term recomputed from plain forward passes.
	bc := 0.0
	for _, e := range b.Edges {
		pred := net.Forward(e.Points.X)
		bc += mat.Sum(square(pred)) / float64(e.Points.Len())
	}
	assert.InDelta(t, bc, c.BC, 1e-12)

	// The IC displacement term recomputed the same way.
	diff := &mat.Dense{}
	diff.Sub(net.Forward(b.Initial.X), b.U0)
	icU := mat.Sum(square(diff)) / float64(b.Initial.Len())
	assert.LessOrEqual(t, icU, c.IC+1e-12)

	assert.False(t, math.IsNaN(c.Total))
	assert.Greater(t, c.Total, 0.0)
}

func TestComposeHandlesFourEdges(t *testing.T) {
	b, d := newBatch(t, 2)
	require.Len(t, b.Edges, 4)
	net, err := model.New(model.Spec{Widths: []int{3, 8, 1}, Bounds: d.Axes()}, rand.New(rand.NewSource(4)))
	require.NoError(t, err)

	tape := autodiff.NewTape()
	total, c, err := Compose(net.Bind(tape), b, physics.LinearIn2D{Base: 1, GradX: 0.5, GradY: 0.3},
		Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1})
	require.NoError(t, err)
	require.NoError(t, tape.Backward(total))

	bc := 0.0
	for _, e := range b.Edges {
		bc += mat.Sum(square(net.Forward(e.Points.X))) / float64(e.Points.Len())
	}
	assert.InDelta(t, bc, c.BC, 1e-12)
	assert.Greater(t, c.BC, 0.0)
}

func TestComposeGradientReachesEveryParameter(t *testing.T) {
	b, _ := newBatch(t, 1)
	net, err := model.New(model.Spec{Widths: []int{2, 5, 5, 1}}, rand.New(rand.NewSource(8)))
	require.NoError(t, err)

	tape := autodiff.NewTape()
	bound := net.Bind(tape)
	total, _, err := Compose(bound, b, physics.Constant{C: 1}, Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1})
	require.NoError(t, err)
	require.NoError(t, tape.Backward(total))

	for i, p := range bound.Params() {
		g := p.Grad()
		require.NotNil(t, g, "param %d has no gradient", i)
		r, c := g.Dims()
		pr, pc := p.Value().Dims()
		assert.Equal(t, []int{pr, pc}, []int{r, c})
	}
}

func TestComposeGradientMatchesFiniteDifference(t *testing.T) {
	b, _ := newBatch(t, 1)
	net, err := model.New(model.Spec{Widths: []int{2, 4, 1}}, rand.New(rand.NewSource(21)))
	require.NoError(t, err)
	w := Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1}
	v := physics.LinearIn1D{Base: 1, Grad: 0.5}

	objective := func() float64 {
		_, c, err := Compose(net.Bind(autodiff.NewTape()), b, v, w)
		require.NoError(t, err)
		return c.Total
	}

	tape := autodiff.NewTape()
	bound := net.Bind(tape)
	total, _, err := Compose(bound, b, v, w)
	require.NoError(t, err)
	require.NoError(t, tape.Backward(total))

	const h = 1e-6
	for pi, p := range net.Params() {
		r, c := p.Dims()
		grad := bound.Params()[pi].Grad()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := p.At(i, j)
				p.Set(i, j, orig+h)
				up := objective()
				p.Set(i, j, orig-h)
				down := objective()
				p.Set(i, j, orig)
				fd := (up - down) / (2 * h)
				assert.InDelta(t, fd, grad.At(i, j), 1e-5*math.Max(1, math.Abs(fd)), "param %d (%d,%d)", pi, i, j)
			}
		}
	}
}

func square(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.MulElem(m, m)
	return out
}
