package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestIntervalValidate(t *testing.T) {
	assert.NoError(t, Interval{Min: -1, Max: 2}.Validate())
	assert.Error(t, Interval{Min: 1, Max: 1}.Validate())
	assert.Error(t, Interval{Min: 2, Max: 1}.Validate())
	assert.Error(t, Interval{Min: math.NaN(), Max: 1}.Validate())
	assert.Error(t, Interval{Min: 0, Max: math.Inf(1)}.Validate())
}

func TestDomainLayout(t *testing.T) {
	d, err := New(Interval{Min: 0, Max: 2}, Interval{Min: 0, Max: 1}, Interval{Min: -1, Max: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, d.SpatialDims())
	assert.Equal(t, 3, d.Dims())
	assert.Equal(t, 2, d.TimeIndex())
	assert.Equal(t, []Interval{{0, 1}, {-1, 1}, {0, 2}}, d.Axes())
	assert.Equal(t, []float64{0.5, 0}, d.Center())
	assert.True(t, d.Contains([]float64{1, -1, 0}))
	assert.False(t, d.Contains([]float64{1, -1, 2.1}))
	assert.False(t, d.Contains([]float64{1, -1}))
}

func TestDomainRejectsBadAxes(t *testing.T) {
	unit := Interval{Min: 0, Max: 1}
	_, err := New(unit)
	assert.Error(t, err)
	_, err = New(unit, unit, unit, unit)
	assert.Error(t, err)
	_, err = New(Interval{Min: 1, Max: 0}, unit)
	assert.Error(t, err)
	_, err = New(unit, Interval{Min: 3, Max: 3})
	assert.Error(t, err)
}

func TestPoints(t *testing.T) {
	p := NewPoints(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}), false)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 3, p.Dim())
	assert.Equal(t, []float64{4, 5, 6}, p.Row(1))
	assert.False(t, p.RequiresGrad())
	assert.Same(t, p, p.RequireGrad())
	assert.True(t, p.RequiresGrad())
}
