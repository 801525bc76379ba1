package trainer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamConfig holds the Adam hyperparameters.
type AdamConfig struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// Adam is adaptive moment estimation with bias correction.
type Adam struct {
	cfg AdamConfig
	m   []*mat.Dense
	v   []*mat.Dense
	t   int
}

// NewAdam fills unset hyperparameters with the usual defaults
// (β1 0.9, β2 0.999, ε 1e-8, lr 1e-3).
func NewAdam(cfg AdamConfig) *Adam {
	if cfg.LR <= 0 {
		cfg.LR = 1e-3
	}
	if cfg.Beta1 <= 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 <= 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-8
	}
	return &Adam{cfg: cfg}
}

// LearningRate returns the current step size.
func (a *Adam) LearningRate() float64 { return a.cfg.LR }

// SetLearningRate changes the step size for later steps.
func (a *Adam) SetLearningRate(lr float64) { a.cfg.LR = lr }

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.t }

// Step updates params in place. A nil gradient is treated as zero.
func (a *Adam) Step(params, grads []*mat.Dense) error {
	if len(params) != len(grads) {
		return fmt.Errorf("adam: %d params, %d grads", len(params), len(grads))
	}
	if a.m == nil {
		a.m = make([]*mat.Dense, len(params))
		a.v = make([]*mat.Dense, len(params))
		for i, p := range params {
			r, c := p.Dims()
			a.m[i] = mat.NewDense(r, c, nil)
			a.v[i] = mat.NewDense(r, c, nil)
		}
	}
	if len(a.m) != len(params) {
		return fmt.Errorf("adam: initialised for %d params, got %d", len(a.m), len(params))
	}

	a.t++
	bc1 := 1 - math.Pow(a.cfg.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.cfg.Beta2, float64(a.t))
	b1, b2, lr, eps := a.cfg.Beta1, a.cfg.Beta2, a.cfg.LR, a.cfg.Epsilon

	for i, p := range params {
		g := grads[i]
		if g == nil {
			continue
		}
		r, c := p.Dims()
		if gr, gc := g.Dims(); gr != r || gc != c {
			return fmt.Errorf("adam: param %d is %dx%d, grad is %dx%d", i, r, c, gr, gc)
		}
		m, v := a.m[i], a.v[i]
		for row := 0; row < r; row++ {
			pr, gr, mr, vr := p.RawRowView(row), g.RawRowView(row), m.RawRowView(row), v.RawRowView(row)
			for j := range pr {
				grad := gr[j]
				mr[j] = b1*mr[j] + (1-b1)*grad
				vr[j] = b2*vr[j] + (1-b2)*grad*grad
				mHat := mr[j] / bc1
				vHat := vr[j] / bc2
				pr[j] -= lr * mHat / (math.Sqrt(vHat) + eps)
			}
		}
	}
	return nil
}
