package domain

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Interval is a closed coordinate range.
type Interval struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Width returns Max-Min.
func (i Interval) Width() float64 { return i.Max - i.Min }

// Mid returns the interval midpoint.
func (i Interval) Mid() float64 { return (i.Min + i.Max) / 2 }

// Contains reports whether v lies in [Min, Max].
func (i Interval) Contains(v float64) bool { return v >= i.Min && v <= i.Max }

// Validate rejects empty, inverted or non-finite intervals.
func (i Interval) Validate() error {
	if math.IsNaN(i.Min) || math.IsNaN(i.Max) || math.IsInf(i.Min, 0) || math.IsInf(i.Max, 0) {
		return fmt.Errorf("interval [%g, %g] is not finite", i.Min, i.Max)
	}
	if !(i.Min < i.Max) {
		return fmt.Errorf("interval [%g, %g] must satisfy min < max", i.Min, i.Max)
	}
	return nil
}

// Domain is the space-time box the wave equation is posed on. Coordinates
// are ordered [x, (y), t]: spatial axes first, time last.
type Domain struct {
	Spatial []Interval
	Time    Interval
}

// New builds a validated domain with one or two spatial axes.
func New(time Interval, spatial ...Interval) (Domain, error) {
	d := Domain{Spatial: append([]Interval(nil), spatial...), Time: time}
	if err := d.Validate(); err != nil {
		return Domain{}, err
	}
	return d, nil
}

// Validate checks the axis count and every interval.
func (d Domain) Validate() error {
	if len(d.Spatial) < 1 || len(d.Spatial) > 2 {
		return fmt.Errorf("domain: need 1 or 2 spatial axes (got %d)", len(d.Spatial))
	}
	for i, iv := range d.Spatial {
		if err := iv.Validate(); err != nil {
			return fmt.Errorf("domain: spatial axis %d: %w", i, err)
		}
	}
	if err := d.Time.Validate(); err != nil {
		return fmt.Errorf("domain: time: %w", err)
	}
	return nil
}

// SpatialDims returns the number of spatial axes.
func (d Domain) SpatialDims() int { return len(d.Spatial) }

// Dims returns the input dimension, spatial axes plus time.
func (d Domain) Dims() int { return len(d.Spatial) + 1 }

// TimeIndex is the column holding t.
func (d Domain) TimeIndex() int { return len(d.Spatial) }

// Axes returns all intervals in coordinate order.
func (d Domain) Axes() []Interval {
	axes := make([]Interval, 0, d.Dims())
	axes = append(axes, d.Spatial...)
	return append(axes, d.Time)
}

// Center returns the spatial midpoint.
func (d Domain) Center() []float64 {
	c := make([]float64, len(d.Spatial))
	for i, iv := range d.Spatial {
		c[i] = iv.Mid()
	}
	return c
}

// Contains reports whether a full [x, (y), t] coordinate lies in the box.
func (d Domain) Contains(p []float64) bool {
	axes := d.Axes()
	if len(p) != len(axes) {
		return false
	}
	for i, iv := range axes {
		if !iv.Contains(p[i]) {
			return false
		}
	}
	return true
}

// ErrShape is returned when a point set does not match the expected width.
var ErrShape = errors.New("domain: point set has the wrong number of columns")

// Points is an N×D coordinate set. Grad marks it as a differentiation
// target: derivatives of a prediction with respect to these coordinates
// may only be requested when it is set.
type Points struct {
	X    *mat.Dense
	grad bool
}

// NewPoints wraps x.
func NewPoints(x *mat.Dense, grad bool) *Points {
	return &Points{X: x, grad: grad}
}

// RequireGrad enables gradient tracking.
func (p *Points) RequireGrad() *Points {
	p.grad = true
	return p
}

// RequiresGrad reports whether gradient tracking is on.
func (p *Points) RequiresGrad() bool { return p.grad }

// Len returns the number of points.
func (p *Points) Len() int {
	if p == nil || p.X == nil {
		return 0
	}
	r, _ := p.X.Dims()
	return r
}

// Dim returns the number of coordinates per point.
func (p *Points) Dim() int {
	if p == nil || p.X == nil {
		return 0
	}
	_, c := p.X.Dims()
	return c
}

// Row returns a copy of point i.
func (p *Points) Row(i int) []float64 {
	return mat.Row(nil, i, p.X)
}
