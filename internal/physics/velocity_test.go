package physics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVelocityEvaluate(t *testing.T) {
	assert.Equal(t, 1.0, Constant{C: 1}.Evaluate([]float64{0.3}))
	assert.InDelta(t, 1.25, LinearIn1D{Base: 1, Grad: 0.5}.Evaluate([]float64{0.5}), 1e-15)
	assert.InDelta(t, 1.0+0.5*0.2+0.3*0.6, LinearIn2D{Base: 1, GradX: 0.5, GradY: 0.3}.Evaluate([]float64{0.2, 0.6}), 1e-15)
}

func TestNewVelocity(t *testing.T) {
	p := Params{C: 2, Base: 1, Grad: 0.5, GradX: 0.4, GradY: 0.3}
	cases := map[string]Velocity{
		"constant":     Constant{C: 2},
		"constante":    Constant{C: 2},
		"linear_1d":    LinearIn1D{Base: 1, Grad: 0.5},
		"Linear":       LinearIn1D{Base: 1, Grad: 0.5},
		"variavel":     LinearIn1D{Base: 1, Grad: 0.5},
		"linear_2d":    LinearIn2D{Base: 1, GradX: 0.4, GradY: 0.3},
		"simulacao_2d": LinearIn2D{Base: 1, GradX: 0.4, GradY: 0.3},
	}
	for kind, want := range cases {
		got, err := NewVelocity(kind, p)
		require.NoError(t, err, kind)
		assert.Equal(t, want, got, kind)
	}

	_, err := NewVelocity("quadratic", p)
	assert.True(t, errors.Is(err, ErrUnknownVelocity), "got %v", err)
}

func TestCheckDims(t *testing.T) {
	assert.NoError(t, CheckDims(Constant{C: 1}, 1))
	assert.NoError(t, CheckDims(LinearIn1D{}, 2))
	assert.NoError(t, CheckDims(LinearIn2D{}, 2))
	assert.Error(t, CheckDims(LinearIn2D{}, 1))
}
