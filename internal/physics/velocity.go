package physics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownVelocity is returned for a velocity kind that is not one of
// the supported variants.
var ErrUnknownVelocity = errors.New("physics: unknown velocity kind")

// Kind names a velocity-field variant.
type Kind string

const (
	KindConstant   Kind = "constant"
	KindLinearIn1D Kind = "linear_1d"
	KindLinearIn2D Kind = "linear_2d"
)

// Velocity is the wave speed c as a function of spatial position. The set
// of implementations is closed: Constant, LinearIn1D and LinearIn2D.
type Velocity interface {
	// Evaluate returns c at the spatial position pos ([x] or [x, y]).
	Evaluate(pos []float64) float64
	Kind() Kind
	// MinDims is the number of spatial axes the field reads.
	MinDims() int
	velocity()
}

// Constant is c(pos) = C.
type Constant struct {
	C float64
}

func (v Constant) Evaluate([]float64) float64 { return v.C }
func (Constant) Kind() Kind                   { return KindConstant }
func (Constant) MinDims() int                 { return 1 }
func (Constant) velocity()                    {}

// LinearIn1D is c(x) = Base + Grad·x.
type LinearIn1D struct {
	Base float64
	Grad float64
}

func (v LinearIn1D) Evaluate(pos []float64) float64 { return v.Base + v.Grad*pos[0] }
func (LinearIn1D) Kind() Kind                       { return KindLinearIn1D }
func (LinearIn1D) MinDims() int                     { return 1 }
func (LinearIn1D) velocity()                        {}

// LinearIn2D is c(x, y) = Base + GradX·x + GradY·y.
type LinearIn2D struct {
	Base  float64
	GradX float64
	GradY float64
}

func (v LinearIn2D) Evaluate(pos []float64) float64 {
	return v.Base + v.GradX*pos[0] + v.GradY*pos[1]
}
func (LinearIn2D) Kind() Kind   { return KindLinearIn2D }
func (LinearIn2D) MinDims() int { return 2 }
func (LinearIn2D) velocity()    {}

// Params carries the coefficients a velocity kind may use. Unused fields
// are ignored.
type Params struct {
	C     float64 `yaml:"c"`
	Base  float64 `yaml:"base"`
	Grad  float64 `yaml:"grad"`
	GradX float64 `yaml:"grad_x"`
	GradY float64 `yaml:"grad_y"`
}

// NewVelocity builds the variant named by kind. Aliases used by the
// experiment presets ("constante", "variavel", "linear", "linear_2d") are
// accepted.
func NewVelocity(kind string, p Params) (Velocity, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindConstant, "constante":
		return Constant{C: p.C}, nil
	case KindLinearIn1D, "linear", "variavel":
		return LinearIn1D{Base: p.Base, Grad: p.Grad}, nil
	case KindLinearIn2D, "simulacao_2d":
		return LinearIn2D{Base: p.Base, GradX: p.GradX, GradY: p.GradY}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownVelocity, kind)
	}
}

// CheckDims verifies v can be evaluated on a domain with spatialDims axes.
func CheckDims(v Velocity, spatialDims int) error {
	if v.MinDims() > spatialDims {
		return fmt.Errorf("physics: %s velocity needs %d spatial axes, domain has %d", v.Kind(), v.MinDims(), spatialDims)
	}
	return nil
}
