package metrics

import (
	"time"

	"wavepinn/internal/loss"
)

// Window accumulates timing stats across multiple epochs.
type Window struct {
	points   int
	sample   time.Duration
	compute  time.Duration
	epochs   int
	lastLoss loss.Components
	lastLR   float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(points int, sampleTime, computeTime time.Duration, c loss.Components, lr float64) {
	w.points += points
	w.sample += sampleTime
	w.compute += computeTime
	w.epochs++
	w.lastLoss = c
	w.lastLR = lr
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	total := w.sample + w.compute
	if total > 0 {
		snap.PointsPerSec = float64(w.points) / total.Seconds()
	}
	if w.epochs > 0 {
		snap.AvgSampleMS = (w.sample.Seconds() * 1000) / float64(w.epochs)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.epochs)
	}
	snap.Last = w.lastLoss
	snap.LearningRate = w.lastLR

	w.points = 0
	w.sample = 0
	w.compute = 0
	w.epochs = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	PointsPerSec float64
	AvgSampleMS  float64
	AvgComputeMS float64
	LearningRate float64
	Last         loss.Components
}
