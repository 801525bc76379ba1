package model

import (
	"errors"
	"fmt"
	"strings"

	"wavepinn/internal/domain"
)

// Activation is the hidden-layer nonlinearity.
type Activation string

const (
	Tanh Activation = "tanh"
	Sine Activation = "sin"
)

// ParseActivation maps a config string to an Activation. Empty means tanh.
func ParseActivation(s string) (Activation, error) {
	switch Activation(strings.ToLower(strings.TrimSpace(s))) {
	case "", Tanh:
		return Tanh, nil
	case Sine, "sine":
		return Sine, nil
	default:
		return "", fmt.Errorf("model: unknown activation %q", s)
	}
}

// Spec describes a network architecture.
type Spec struct {
	// Widths lists every layer width, input first. The last must be 1.
	Widths     []int
	Activation Activation
	// Bounds, when set, rescales input column i from Bounds[i] to [-1, 1]
	// before the first layer. It must have one entry per input.
	Bounds []domain.Interval
}

// Inputs returns the input width.
func (s Spec) Inputs() int {
	if len(s.Widths) == 0 {
		return 0
	}
	return s.Widths[0]
}

// Validate checks that the widths chain into a scalar output.
func (s Spec) Validate() error {
	if len(s.Widths) < 2 {
		return fmt.Errorf("model: need at least input and output widths (got %v)", s.Widths)
	}
	for i, w := range s.Widths {
		if w <= 0 {
			return fmt.Errorf("model: layer %d width must be > 0 (got %d)", i, w)
		}
	}
	if out := s.Widths[len(s.Widths)-1]; out != 1 {
		return fmt.Errorf("model: output width must be 1 (got %d)", out)
	}
	if _, err := ParseActivation(string(s.Activation)); err != nil {
		return err
	}
	if s.Bounds != nil {
		if len(s.Bounds) != s.Widths[0] {
			return fmt.Errorf("model: %d normalization bounds for %d inputs", len(s.Bounds), s.Widths[0])
		}
		for i, b := range s.Bounds {
			if err := b.Validate(); err != nil {
				return fmt.Errorf("model: bounds %d: %w", i, err)
			}
		}
	}
	return nil
}

// Equal reports whether two specs describe the same architecture. Bounds
// are not compared.
func (s Spec) Equal(o Spec) bool {
	if len(s.Widths) != len(o.Widths) {
		return false
	}
	for i := range s.Widths {
		if s.Widths[i] != o.Widths[i] {
			return false
		}
	}
	a, _ := ParseActivation(string(s.Activation))
	b, _ := ParseActivation(string(o.Activation))
	return a == b && (s.Bounds == nil) == (o.Bounds == nil)
}

// ErrNoGrad is returned when input derivatives are requested for points
// without gradient tracking.
var ErrNoGrad = errors.New("model: points do not track gradients")
