// Package checkpoint saves and restores network parameters.
//
// A checkpoint is a gob-encoded snapshot holding the architecture, the
// optional input-normalization bounds and every layer's weights and biases
// in gonum's binary matrix encoding, together with the training progress
// (completed epochs and loss) at the time of writing. The canonical path
// holds the best model so far; periodic snapshots sit next to it as
// <base>_epoch<N><ext> and are written once.
package checkpoint

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/domain"
	"wavepinn/internal/model"
)

const formatVersion = 2

const periodicPrefix = "epoch"

var (
	// ErrNotFound means no checkpoint exists at the path.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrIncompatible means the file does not match the requested architecture
	// or cannot be decoded.
	ErrIncompatible = errors.New("checkpoint: incompatible")
	// ErrExists means a periodic snapshot for that epoch is already on disk.
	ErrExists = errors.New("checkpoint: snapshot already exists")
)

// Progress is where training stood when a snapshot was taken. Epoch counts
// completed epochs.
type Progress struct {
	Epoch int
	Loss  float64
}

type snapshot struct {
	Version    int
	RunID      string
	Host       string
	Progress   *Progress
	Widths     []int
	Activation string
	Bounds     []domain.Interval
	Weights    [][]byte
	Biases     [][]byte
}

// Info describes a stored checkpoint without building a network.
type Info struct {
	RunID string
	// Host describes the machine that wrote the file.
	Host string
	// Progress is nil for snapshots written outside a training loop.
	Progress   *Progress
	Widths     []int
	Activation model.Activation
	Normalized bool
}

// EpochSuffix is the suffix used for the periodic checkpoint of an epoch.
func EpochSuffix(epoch int) string {
	return fmt.Sprintf("%s%d", periodicPrefix, epoch)
}

// Path inserts suffix before the extension of path: model.gob with suffix
// epoch500 becomes model_epoch500.gob. An empty suffix returns path.
func Path(path, suffix string) string {
	if suffix == "" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}

// Writer saves snapshots tagged with a run id and host description.
type Writer struct {
	RunID string
	Host  string
}

// Save writes net to path (or to its suffixed variant) and returns the path
// written. The file is replaced atomically.
func (w Writer) Save(net *model.Network, path, suffix string) (string, error) {
	return w.write(net, Path(path, suffix), nil, true)
}

// SaveBest replaces the canonical checkpoint at path, recording p.
func (w Writer) SaveBest(net *model.Network, path string, p Progress) (string, error) {
	return w.write(net, path, &p, true)
}

// SavePeriodic writes the snapshot for p.Epoch next to path. An existing
// snapshot for the same epoch is never replaced; ErrExists is returned.
func (w Writer) SavePeriodic(net *model.Network, path string, p Progress) (string, error) {
	return w.write(net, Path(path, EpochSuffix(p.Epoch)), &p, false)
}

func (w Writer) write(net *model.Network, target string, p *Progress, replace bool) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}

	snap, err := encode(net, w.RunID)
	if err != nil {
		return "", err
	}
	snap.Host = w.Host
	snap.Progress = p

	if !replace {
		// Reserve the name first so a concurrent or earlier snapshot wins.
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, target)
		}
		if err != nil {
			return "", fmt.Errorf("checkpoint: create: %w", err)
		}
		f.Close()
	}
	written, err := writeAtomic(dir, target, snap)
	if err != nil && !replace {
		os.Remove(target)
	}
	return written, err
}

func writeAtomic(dir, target string, snap *snapshot) (string, error) {
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp*")
	if err != nil {
		return "", fmt.Errorf("checkpoint: create: %w", err)
	}
	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("checkpoint: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("checkpoint: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("checkpoint: rename: %w", err)
	}
	return target, nil
}

// Save writes net without a run id.
func Save(net *model.Network, path, suffix string) (string, error) {
	return Writer{}.Save(net, path, suffix)
}

func encode(net *model.Network, runID string) (*snapshot, error) {
	spec := net.Spec()
	snap := &snapshot{
		Version:    formatVersion,
		RunID:      runID,
		Widths:     spec.Widths,
		Activation: string(spec.Activation),
		Bounds:     spec.Bounds,
	}
	for i, l := range net.Layers() {
		w, err := l.W.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("checkpoint: layer %d weights: %w", i, err)
		}
		b, err := l.B.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("checkpoint: layer %d bias: %w", i, err)
		}
		snap.Weights = append(snap.Weights, w)
		snap.Biases = append(snap.Biases, b)
	}
	return snap, nil
}

// Load rebuilds a network with the architecture in spec and the parameters
// stored at path. Normalization bounds stored in the file replace those in
// spec. A missing file yields ErrNotFound and any mismatch ErrIncompatible;
// the returned network is nil in both cases.
func Load(spec model.Spec, path string) (*model.Network, error) {
	snap, err := read(path)
	if err != nil {
		return nil, err
	}
	stored := model.Spec{Widths: snap.Widths, Activation: model.Activation(snap.Activation)}
	if len(snap.Bounds) > 0 {
		stored.Bounds = snap.Bounds
	}
	if !spec.Equal(stored) {
		return nil, fmt.Errorf("%w: %s holds widths=%v activation=%s normalized=%t; want widths=%v activation=%s normalized=%t",
			ErrIncompatible, path, stored.Widths, stored.Activation, stored.Bounds != nil,
			spec.Widths, activationName(spec.Activation), spec.Bounds != nil)
	}
	if len(snap.Weights) != len(snap.Widths)-1 || len(snap.Biases) != len(snap.Weights) {
		return nil, fmt.Errorf("%w: %s has %d weight and %d bias blocks for %d layers",
			ErrIncompatible, path, len(snap.Weights), len(snap.Biases), len(snap.Widths)-1)
	}

	layers := make([]model.Layer, len(snap.Weights))
	for i := range layers {
		w, b := &mat.Dense{}, &mat.Dense{}
		if err := w.UnmarshalBinary(snap.Weights[i]); err != nil {
			return nil, fmt.Errorf("%w: layer %d weights: %v", ErrIncompatible, i, err)
		}
		if err := b.UnmarshalBinary(snap.Biases[i]); err != nil {
			return nil, fmt.Errorf("%w: layer %d bias: %v", ErrIncompatible, i, err)
		}
		layers[i] = model.Layer{W: w, B: b}
	}
	want := spec
	want.Bounds = stored.Bounds
	net, err := model.FromLayers(want, layers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	return net, nil
}

// Inspect reads the header of the checkpoint at path.
func Inspect(path string) (Info, error) {
	snap, err := read(path)
	if err != nil {
		return Info{}, err
	}
	return Info{
		RunID:      snap.RunID,
		Host:       snap.Host,
		Progress:   snap.Progress,
		Widths:     snap.Widths,
		Activation: model.Activation(snap.Activation),
		Normalized: len(snap.Bounds) > 0,
	}, nil
}

func read(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}
	defer f.Close()
	return decode(f, path)
}

func decode(r io.Reader, path string) (*snapshot, error) {
	snap := &snapshot{}
	if err := gob.NewDecoder(r).Decode(snap); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrIncompatible, path, err)
	}
	// Version 1 files lack Host and Progress; both decode as zero.
	if snap.Version < 1 || snap.Version > formatVersion {
		return nil, fmt.Errorf("%w: %s has format version %d, want %d", ErrIncompatible, path, snap.Version, formatVersion)
	}
	return snap, nil
}

// ResumePoint is what a new run needs to continue an earlier one.
type ResumePoint struct {
	// From is the file the parameters were read from.
	From    string
	Network *model.Network
	// Epoch is the number of epochs already completed.
	Epoch int
	// BestLoss is the loss recorded with the canonical checkpoint, or +Inf
	// when it carries none.
	BestLoss float64
}

// Resume loads whichever of the canonical checkpoint and the newest
// periodic snapshot next to path is further along. Files without recorded
// progress count as epoch 0. ErrNotFound means neither exists.
func Resume(spec model.Spec, path string) (*ResumePoint, error) {
	rp := &ResumePoint{BestLoss: math.Inf(1)}
	canonical := -1
	info, err := Inspect(path)
	switch {
	case err == nil:
		canonical = 0
		if info.Progress != nil {
			canonical = info.Progress.Epoch
			rp.BestLoss = info.Progress.Loss
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	entry, ok, err := Latest(path)
	if err != nil {
		return nil, err
	}
	switch {
	case ok && entry.Epoch >= canonical:
		rp.From, rp.Epoch = entry.Path, entry.Epoch
	case canonical >= 0:
		rp.From, rp.Epoch = path, canonical
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if rp.Network, err = Load(spec, rp.From); err != nil {
		return nil, err
	}
	return rp, nil
}

func activationName(a model.Activation) model.Activation {
	parsed, err := model.ParseActivation(string(a))
	if err != nil {
		return a
	}
	return parsed
}
