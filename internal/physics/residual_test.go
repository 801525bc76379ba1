package physics

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/autodiff"
	"wavepinn/internal/domain"
	"wavepinn/internal/model"
)

// standing1D represents sin(πx)cos(πt) exactly as
// ½·sin(πx+πt) + ½·sin(πx−πt) with two sine units.
func standing1D(t *testing.T) *model.Network {
	t.Helper()
	net, err := model.FromLayers(
		model.Spec{Widths: []int{2, 2, 1}, Activation: model.Sine},
		[]model.Layer{
			{W: mat.NewDense(2, 2, []float64{math.Pi, math.Pi, math.Pi, -math.Pi}), B: mat.NewDense(1, 2, nil)},
			{W: mat.NewDense(2, 1, []float64{0.5, 0.5}), B: mat.NewDense(1, 1, nil)},
		})
	require.NoError(t, err)
	return net
}

// standing2D represents sin(πx)sin(πy)cos(√2πt) as a sum of four cosines,
// each a sine unit shifted by π/2. With bounds set, the first layer is
// rewritten in normalized coordinates so the function is unchanged.
func standing2D(t *testing.T, bounds []domain.Interval) *model.Network {
	t.Helper()
	w := math.Sqrt2 * math.Pi
	coef := [][3]float64{
		{math.Pi, -math.Pi, w},
		{math.Pi, -math.Pi, -w},
		{math.Pi, math.Pi, w},
		{math.Pi, math.Pi, -w},
	}
	W := mat.NewDense(3, 4, nil)
	B := mat.NewDense(1, 4, nil)
	for j, c := range coef {
		bias := math.Pi / 2
		for i := 0; i < 3; i++ {
			scale, shift := 1.0, 0.0
			if bounds != nil {
				scale, shift = bounds[i].Width()/2, bounds[i].Mid()
			}
			W.Set(i, j, c[i]*scale)
			bias += c[i] * shift
		}
		B.Set(0, j, bias)
	}
	net, err := model.FromLayers(
		model.Spec{Widths: []int{3, 4, 1}, Activation: model.Sine, Bounds: bounds},
		[]model.Layer{
			{W: W, B: B},
			{W: mat.NewDense(4, 1, []float64{0.25, 0.25, -0.25, -0.25}), B: mat.NewDense(1, 1, nil)},
		})
	require.NoError(t, err)
	return net
}

func randomPoints(rng *rand.Rand, n int, axes ...domain.Interval) *mat.Dense {
	x := mat.NewDense(n, len(axes), nil)
	for i := 0; i < n; i++ {
		for j, iv := range axes {
			x.Set(i, j, iv.Min+rng.Float64()*iv.Width())
		}
	}
	return x
}

func TestStandingWaveNetworksAreExact(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	unit := domain.Interval{Min: 0, Max: 1}

	x1 := randomPoints(rng, 20, unit, unit)
	u1 := standing1D(t).Forward(x1)
	for i := 0; i < 20; i++ {
		want := math.Sin(math.Pi*x1.At(i, 0)) * math.Cos(math.Pi*x1.At(i, 1))
		assert.InDelta(t, want, u1.At(i, 0), 1e-12)
	}

	x2 := randomPoints(rng, 20, unit, unit, unit)
	for _, bounds := range [][]domain.Interval{nil, {unit, unit, unit}} {
		u2 := standing2D(t, bounds).Forward(x2)
		for i := 0; i < 20; i++ {
			want := math.Sin(math.Pi*x2.At(i, 0)) * math.Sin(math.Pi*x2.At(i, 1)) * math.Cos(math.Sqrt2*math.Pi*x2.At(i, 2))
			assert.InDelta(t, want, u2.At(i, 0), 1e-12)
		}
	}
}

func TestResidualVanishesOnExactSolution1D(t *testing.T) {
	unit := domain.Interval{Min: 0, Max: 1}
	pts := domain.NewPoints(randomPoints(rand.New(rand.NewSource(2)), 50, unit, unit), true)

	r, err := Residual(standing1D(t).Bind(autodiff.NewTape()), pts, Constant{C: 1})
	require.NoError(t, err)
	rows, cols := r.Dims()
	assert.Equal(t, 50, rows)
	assert.Equal(t, 1, cols)
	for i := 0; i < rows; i++ {
		assert.InDelta(t, 0, r.Value().At(i, 0), 1e-10)
	}
}

func TestResidualVanishesOnExactSolution2D(t *testing.T) {
	unit := domain.Interval{Min: 0, Max: 1}
	for name, bounds := range map[string][]domain.Interval{
		"raw":        nil,
		"normalized": {unit, unit, unit},
	} {
		t.Run(name, func(t *testing.T) {
			pts := domain.NewPoints(randomPoints(rand.New(rand.NewSource(3)), 50, unit, unit, unit), true)
			r, err := Residual(standing2D(t, bounds).Bind(autodiff.NewTape()), pts, Constant{C: 1})
			require.NoError(t, err)
			for i := 0; i < pts.Len(); i++ {
				assert.InDelta(t, 0, r.Value().At(i, 0), 1e-9)
			}
		})
	}
}

func TestResidualUsesLocalSpeed(t *testing.T) {
	unit := domain.Interval{Min: 0, Max: 1}
	x := randomPoints(rand.New(rand.NewSource(4)), 30, unit, unit)
	v := LinearIn1D{Base: 1, Grad: 0.5}
	net := standing1D(t)

	r, err := Residual(net.Bind(autodiff.NewTape()), domain.NewPoints(x, true), v)
	require.NoError(t, err)
	u := net.Forward(x)
	for i := 0; i < 30; i++ {
		// u_tt = u_xx = -π²u, so R = π²u(c² - 1).
		c := v.Evaluate([]float64{x.At(i, 0)})
		want := math.Pi * math.Pi * u.At(i, 0) * (c*c - 1)
		assert.InDelta(t, want, r.Value().At(i, 0), 1e-9)
	}
}

func TestResidualEnablesTracking(t *testing.T) {
	unit := domain.Interval{Min: 0, Max: 1}
	pts := domain.NewPoints(randomPoints(rand.New(rand.NewSource(5)), 4, unit, unit), false)
	_, err := Residual(standing1D(t).Bind(autodiff.NewTape()), pts, Constant{C: 1})
	require.NoError(t, err)
	assert.True(t, pts.RequiresGrad())
}

func TestResidualRejectsBadInput(t *testing.T) {
	net := standing1D(t)
	unit := domain.Interval{Min: 0, Max: 1}
	pts := domain.NewPoints(randomPoints(rand.New(rand.NewSource(6)), 4, unit, unit), true)

	_, err := Residual(net.Bind(autodiff.NewTape()), pts, LinearIn2D{Base: 1})
	assert.Error(t, err)
	_, err = Residual(net.Bind(autodiff.NewTape()), pts, nil)
	assert.Error(t, err)

	narrow := domain.NewPoints(mat.NewDense(2, 1, []float64{0.1, 0.2}), true)
	_, err = Residual(net.Bind(autodiff.NewTape()), narrow, Constant{C: 1})
	assert.True(t, errors.Is(err, domain.ErrShape), "got %v", err)
}

func TestInitialDerivatives(t *testing.T) {
	unit := domain.Interval{Min: 0, Max: 1}
	x := randomPoints(rand.New(rand.NewSource(7)), 25, unit, unit)
	pts := domain.NewPoints(x, false)

	u, ut, err := InitialDerivatives(standing1D(t).Bind(autodiff.NewTape()), pts)
	require.NoError(t, err)
	assert.True(t, pts.RequiresGrad())
	for i := 0; i < 25; i++ {
		xi, ti := x.At(i, 0), x.At(i, 1)
		assert.InDelta(t, math.Sin(math.Pi*xi)*math.Cos(math.Pi*ti), u.Value().At(i, 0), 1e-12)
		assert.InDelta(t, -math.Pi*math.Sin(math.Pi*xi)*math.Sin(math.Pi*ti), ut.Value().At(i, 0), 1e-10)
	}
}

func TestInitialVelocityOfStandingWaveIsZero(t *testing.T) {
	x := mat.NewDense(3, 3, []float64{
		0.2, 0.3, 0,
		0.5, 0.5, 0,
		0.9, 0.1, 0,
	})
	_, ut, err := InitialDerivatives(standing2D(t, nil).Bind(autodiff.NewTape()), domain.NewPoints(x, true))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0, ut.Value().At(i, 0), 1e-12)
	}
}
