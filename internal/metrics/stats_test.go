package metrics

import (
	"math"
	"testing"
	"time"

	"wavepinn/internal/loss"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond, loss.Components{Total: 1.2}, 1e-3)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond, loss.Components{Total: 0.8, IC: 0.3}, 5e-4)
	snap := w.Snapshot()
	if math.Abs(snap.PointsPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.PointsPerSec)
	}
	if math.Abs(snap.AvgSampleMS-15) > 1e-9 || math.Abs(snap.AvgComputeMS-15) > 1e-9 {
		t.Fatalf("unexpected averages sample=%.3f compute=%.3f", snap.AvgSampleMS, snap.AvgComputeMS)
	}
	if w.points != 0 || w.epochs != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.Last.Total != 0.8 || snap.Last.IC != 0.3 {
		t.Fatalf("expected last loss 0.8, got %+v", snap.Last)
	}
	if snap.LearningRate != 5e-4 {
		t.Fatalf("expected last lr 5e-4, got %g", snap.LearningRate)
	}
}

func TestEmptyWindowSnapshot(t *testing.T) {
	var w Window
	snap := w.Snapshot()
	if snap.PointsPerSec != 0 || snap.AvgSampleMS != 0 {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}
