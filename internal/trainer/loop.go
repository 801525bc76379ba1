package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"wavepinn/internal/loss"
	"wavepinn/internal/metrics"
)

// ErrDivergence is matched by every *DivergenceError.
var ErrDivergence = errors.New("trainer: loss diverged")

// DivergenceError reports the epoch whose loss was NaN or infinite. No
// update was applied for that epoch.
type DivergenceError struct {
	Epoch int
	Loss  float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("trainer: non-finite loss %v at epoch %d", e.Loss, e.Epoch)
}

// Is makes errors.Is(err, ErrDivergence) hold.
func (e *DivergenceError) Is(target error) bool { return target == ErrDivergence }

// Stepper performs the numerical work of one epoch.
type Stepper interface {
	// Sample draws a fresh batch and returns how many points it holds.
	Sample(epoch int) (int, error)
	// Loss evaluates the objective on the current batch.
	Loss() (loss.Components, error)
	// Apply backpropagates the last loss and updates the parameters.
	Apply() error
}

// Saver persists the model.
type Saver interface {
	// SaveBest overwrites the canonical checkpoint with the model after
	// epoch, whose loss was loss.
	SaveBest(epoch int, loss float64) error
	// SavePeriodic writes the snapshot taken after completed epochs. An
	// existing snapshot for the same count is left alone and reported.
	SavePeriodic(completed int, loss float64) error
}

// Scheduler adjusts the learning rate from the epoch loss.
type Scheduler interface {
	Step(loss float64) (lr float64, reduced bool)
}

// EpochStats is handed to the Observer after every completed epoch.
type EpochStats struct {
	Epoch        int
	Epochs       int
	Loss         loss.Components
	LearningRate float64
	Reduced      bool
	Points       int
	SampleTime   time.Duration
	ComputeTime  time.Duration
}

// Observer receives per-epoch progress.
type Observer interface {
	Observe(EpochStats)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(EpochStats)

// Observe calls f.
func (f ObserverFunc) Observe(s EpochStats) { f(s) }

// Outcome summarises a finished or interrupted loop.
type Outcome struct {
	History   metrics.History
	BestLoss  float64
	BestEpoch int
}

// Resume is the state carried over from an earlier run of the same job.
type Resume struct {
	// Epoch is the number of epochs already completed; the loop starts here.
	Epoch int
	// BestLoss is the loss of the current canonical checkpoint. Only a
	// strictly lower loss replaces it.
	BestLoss float64
	// History holds the earlier records; those at or after Epoch are dropped.
	History metrics.History
}

func (r *Resume) validate(epochs int) error {
	if r.Epoch < 0 {
		return fmt.Errorf("trainer: resume epoch %d is negative", r.Epoch)
	}
	if r.Epoch >= epochs {
		return fmt.Errorf("trainer: resume epoch %d already reaches the %d configured epochs", r.Epoch, epochs)
	}
	if math.IsNaN(r.BestLoss) {
		return errors.New("trainer: resume best loss is NaN")
	}
	return nil
}

// Loop drives a Stepper up to a fixed total number of epochs.
type Loop struct {
	Epochs          int
	CheckpointEvery int
	Stepper         Stepper
	Saver           Saver
	Scheduler       Scheduler
	Observer        Observer
	// Resume, when set, continues the epoch count, the best loss and the
	// history of an earlier run.
	Resume *Resume
}

// Run executes the epochs. The returned Outcome holds every completed epoch
// even when err is non-nil. A non-finite loss stops the loop before the
// update with a *DivergenceError. Failed periodic snapshots are logged and
// skipped; a failed best-model save aborts the run. ctx is checked between
// epochs, never inside one.
func (l *Loop) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{BestLoss: math.Inf(1), BestEpoch: -1}
	if l.Epochs <= 0 {
		return out, errors.New("trainer: epochs must be > 0")
	}
	if l.Stepper == nil || l.Saver == nil {
		return out, errors.New("trainer: loop needs a stepper and a saver")
	}
	start := 0
	out.History = make(metrics.History, 0, l.Epochs)
	if r := l.Resume; r != nil {
		if err := r.validate(l.Epochs); err != nil {
			return out, err
		}
		start = r.Epoch
		out.BestLoss = r.BestLoss
		out.History = append(out.History, r.History.Before(start)...)
		if best, ok := out.History.Best(); ok && best.Total == r.BestLoss {
			out.BestEpoch = best.Epoch
		}
	}

	for epoch := start; epoch < l.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			log.Printf("epoch=%d event=stopped err=%v", epoch, err)
			return out, fmt.Errorf("trainer: stopped before epoch %d: %w", epoch, err)
		}
		startSample := time.Now()
		points, err := l.Stepper.Sample(epoch)
		if err != nil {
			return out, fmt.Errorf("trainer: sample epoch %d: %w", epoch, err)
		}
		sampleTime := time.Since(startSample)

		startCompute := time.Now()
		c, err := l.Stepper.Loss()
		if err != nil {
			return out, fmt.Errorf("trainer: loss epoch %d: %w", epoch, err)
		}
		if math.IsNaN(c.Total) || math.IsInf(c.Total, 0) {
			log.Printf("epoch=%d event=diverged loss=%v", epoch, c.Total)
			return out, &DivergenceError{Epoch: epoch, Loss: c.Total}
		}
		if err := l.Stepper.Apply(); err != nil {
			return out, fmt.Errorf("trainer: update epoch %d: %w", epoch, err)
		}
		computeTime := time.Since(startCompute)

		var lr float64
		var reduced bool
		if l.Scheduler != nil {
			lr, reduced = l.Scheduler.Step(c.Total)
		}

		out.History.Append(epoch, c)
		if l.Observer != nil {
			l.Observer.Observe(EpochStats{
				Epoch:        epoch,
				Epochs:       l.Epochs,
				Loss:         c,
				LearningRate: lr,
				Reduced:      reduced,
				Points:       points,
				SampleTime:   sampleTime,
				ComputeTime:  computeTime,
			})
		}

		if l.CheckpointEvery > 0 && (epoch+1)%l.CheckpointEvery == 0 {
			if err := l.Saver.SavePeriodic(epoch+1, c.Total); err != nil {
				log.Printf("epoch=%d event=checkpoint_failed err=%v", epoch+1, err)
			} else {
				log.Printf("epoch=%d event=checkpoint", epoch+1)
			}
		}

		if c.Total < out.BestLoss {
			out.BestLoss = c.Total
			out.BestEpoch = epoch
			if err := l.Saver.SaveBest(epoch, c.Total); err != nil {
				return out, fmt.Errorf("trainer: save best model at epoch %d: %w", epoch, err)
			}
		}
	}
	return out, nil
}

// progress logs a line every `every` epochs, the way the step logger of a
// training job does, aggregating throughput in a metrics.Window.
type progress struct {
	every  int
	window metrics.Window
}

func newProgress(every int) *progress {
	if every <= 0 {
		every = 50
	}
	return &progress{every: every}
}

func (p *progress) Observe(s EpochStats) {
	p.window.Record(s.Points, s.SampleTime, s.ComputeTime, s.Loss, s.LearningRate)
	if s.Reduced {
		log.Printf("epoch=%d event=lr_reduced lr=%.2e", s.Epoch, s.LearningRate)
	}
	if s.Epoch%p.every != 0 {
		return
	}
	snap := p.window.Snapshot()
	log.Printf("epoch=%d/%d loss=%.4e pde=%.4e ic=%.4e bc=%.4e lr=%.1e points_per_sec=%.1f sample_ms=%.2f compute_ms=%.2f",
		s.Epoch, s.Epochs,
		snap.Last.Total, snap.Last.PDE, snap.Last.IC, snap.Last.BC,
		snap.LearningRate,
		snap.PointsPerSec, snap.AvgSampleMS, snap.AvgComputeMS,
	)
}
