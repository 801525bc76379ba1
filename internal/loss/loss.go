// Package loss combines the PDE, initial-condition and boundary terms into
// the training objective.
package loss

import (
	"fmt"

	"wavepinn/internal/autodiff"
	"wavepinn/internal/dataset"
	"wavepinn/internal/model"
	"wavepinn/internal/physics"
)

// Weights scales each raw term in the objective.
type Weights struct {
	PDE float64 `yaml:"pde"`
	ICU float64 `yaml:"ic_u"`
	ICV float64 `yaml:"ic_v"`
	BC  float64 `yaml:"bc"`
}

// Terms are the raw (unweighted) loss terms.
type Terms struct {
	PDE float64
	ICU float64
	ICV float64
	BC  float64
}

// Components is what gets reported per epoch. Total is weighted; PDE, IC
// and BC are not, and IC is the plain sum ICU + ICV even though the two
// halves carry different weights in Total.
type Components struct {
	Total float64
	PDE   float64
	IC    float64
	BC    float64
}

// Combine applies the weights to raw terms.
func (w Weights) Combine(t Terms) Components {
	return Components{
		Total: w.PDE*t.PDE + w.ICU*t.ICU + w.ICV*t.ICV + w.BC*t.BC,
		PDE:   t.PDE,
		IC:    t.ICU + t.ICV,
		BC:    t.BC,
	}
}

// Compose builds the weighted objective for one batch on the network's
// tape and returns it with its reported components.
func Compose(net *model.Bound, b *dataset.Batch, v physics.Velocity, w Weights) (*autodiff.Node, Components, error) {
	t := net.Tape()

	residual, err := physics.Residual(net, b.Collocation, v)
	if err != nil {
		return nil, Components{}, err
	}
	pde := t.MeanSquare(residual)

	u, ut, err := physics.InitialDerivatives(net, b.Initial)
	if err != nil {
		return nil, Components{}, err
	}
	icU := t.MeanSquare(t.Sub(u, t.Constant(b.U0)))
	icV := t.MeanSquare(t.Sub(ut, t.Constant(b.V0)))

	if len(b.Edges) == 0 {
		return nil, Components{}, fmt.Errorf("loss: batch has no boundary edges")
	}
	var bc *autodiff.Node
	for _, e := range b.Edges {
		pred, err := net.Forward(e.Points)
		if err != nil {
			return nil, Components{}, fmt.Errorf("loss: edge %s: %w", e.Name, err)
		}
		term := t.MeanSquare(t.Sub(pred, t.Constant(e.Target)))
		if bc == nil {
			bc = term
		} else {
			bc = t.Add(bc, term)
		}
	}

	total := t.WeightedSum(
		[]*autodiff.Node{pde, icU, icV, bc},
		[]float64{w.PDE, w.ICU, w.ICV, w.BC},
	)
	c := w.Combine(Terms{PDE: pde.Scalar(), ICU: icU.Scalar(), ICV: icV.Scalar(), BC: bc.Scalar()})
	c.Total = total.Scalar()
	return total, c, nil
}
