package trainer

import "math"

// LRSetter is the part of an optimizer a scheduler drives.
type LRSetter interface {
	LearningRate() float64
	SetLearningRate(lr float64)
}

// PlateauConfig controls learning-rate reduction on a stalled loss.
type PlateauConfig struct {
	// Factor multiplies the rate on each reduction.
	Factor float64
	// Patience is how many epochs without improvement are tolerated.
	Patience int
	// MinLR is the floor.
	MinLR float64
	// Threshold is the relative improvement that counts as progress.
	Threshold float64
}

// Plateau lowers the learning rate once the tracked loss has failed to
// improve for more than Patience consecutive epochs.
type Plateau struct {
	cfg  PlateauConfig
	opt  LRSetter
	best float64
	bad  int
}

// DefaultPlateau is the schedule used when a run leaves PlateauConfig unset.
var DefaultPlateau = PlateauConfig{Factor: 0.5, Patience: 1000, MinLR: 1e-6, Threshold: 1e-4}

// NewPlateau takes Patience and MinLR as given, so zero means "reduce on the
// first stalled epoch" and "no floor"; negative values count as zero. A
// Factor outside (0, 1) or a non-positive Threshold falls back to
// DefaultPlateau's.
func NewPlateau(opt LRSetter, cfg PlateauConfig) *Plateau {
	if cfg.Factor <= 0 || cfg.Factor >= 1 {
		cfg.Factor = DefaultPlateau.Factor
	}
	if cfg.Patience < 0 {
		cfg.Patience = 0
	}
	if cfg.MinLR < 0 {
		cfg.MinLR = 0
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultPlateau.Threshold
	}
	return &Plateau{cfg: cfg, opt: opt, best: math.Inf(1)}
}

// Step records an epoch loss. It reports whether the rate was lowered and
// the rate now in effect.
func (p *Plateau) Step(loss float64) (lr float64, reduced bool) {
	if loss < p.best*(1-p.cfg.Threshold) {
		p.best = loss
		p.bad = 0
	} else {
		p.bad++
	}
	lr = p.opt.LearningRate()
	if p.bad > p.cfg.Patience {
		p.bad = 0
		next := math.Max(lr*p.cfg.Factor, p.cfg.MinLR)
		if lr-next > 1e-12 {
			p.opt.SetLearningRate(next)
			return next, true
		}
	}
	return lr, false
}
