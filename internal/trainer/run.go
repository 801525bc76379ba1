package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/mat"

	"wavepinn/internal/autodiff"
	"wavepinn/internal/checkpoint"
	"wavepinn/internal/dataset"
	"wavepinn/internal/domain"
	"wavepinn/internal/loss"
	"wavepinn/internal/metrics"
	"wavepinn/internal/model"
	"wavepinn/internal/physics"
)

// RunConfig captures everything a training run needs. It is read, never
// modified, by Run.
type RunConfig struct {
	Domain   domain.Domain
	Velocity physics.Velocity
	Model    model.Spec
	Counts   dataset.Counts
	Weights  loss.Weights

	LearningRate float64
	// Plateau's zero value selects DefaultPlateau.
	Plateau PlateauConfig
	Epochs  int

	ModelPath       string
	HistoryPath     string
	CheckpointEvery int
	LogEvery        int
	Seed            int64

	// Init, when set, is trained in place instead of a fresh network.
	Init *model.Network
	// Resume continues the epoch count of the run Init came from. It
	// requires Init.
	Resume *Resume
	// Observer, when set, sees every epoch in addition to the log.
	Observer Observer
}

// Validate checks the run before any work starts.
func (c RunConfig) Validate() error {
	if err := c.Domain.Validate(); err != nil {
		return err
	}
	if c.Velocity == nil {
		return errors.New("trainer: velocity is required")
	}
	if err := physics.CheckDims(c.Velocity, c.Domain.SpatialDims()); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.Model.Inputs() != c.Domain.Dims() {
		return fmt.Errorf("trainer: network takes %d inputs, domain has %d coordinates", c.Model.Inputs(), c.Domain.Dims())
	}
	if err := c.Counts.Validate(); err != nil {
		return err
	}
	if c.Epochs <= 0 {
		return errors.New("trainer: epochs must be > 0")
	}
	if c.LearningRate <= 0 {
		return errors.New("trainer: learning rate must be > 0")
	}
	if c.ModelPath == "" {
		return errors.New("trainer: model path is required")
	}
	if c.Init != nil && !c.Init.Spec().Equal(c.Model) {
		return fmt.Errorf("trainer: initial network widths %v do not match %v", c.Init.Spec().Widths, c.Model.Widths)
	}
	if c.Resume != nil {
		if c.Init == nil {
			return errors.New("trainer: resuming needs the network to continue from")
		}
		if err := c.Resume.validate(c.Epochs); err != nil {
			return err
		}
	}
	return nil
}

// Result is what a run produced.
type Result struct {
	RunID     string
	Network   *model.Network
	History   metrics.History
	BestLoss  float64
	BestEpoch int
}

// Run trains a network until cfg.Epochs or until ctx is done. The history
// table is written even when the run stops early; in that case both a
// Result and the error are returned.
func Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	host := hostDescription()
	rng := rand.New(rand.NewSource(cfg.Seed))

	net := cfg.Init
	if net == nil {
		var err error
		if net, err = model.New(cfg.Model, rng); err != nil {
			return nil, err
		}
	}

	log.Printf("run=%s velocity=%s dims=%d widths=%v activation=%s params=%d normalized=%t",
		runID, cfg.Velocity.Kind(), cfg.Domain.Dims(), cfg.Model.Widths,
		net.Spec().Activation, net.NumParams(), net.Spec().Bounds != nil)
	log.Printf("run=%s host=%q epochs=%d lr=%.1e seed=%d", runID, host, cfg.Epochs, cfg.LearningRate, cfg.Seed)
	if r := cfg.Resume; r != nil {
		log.Printf("run=%s event=resume start_epoch=%d best_loss=%.4e history=%d", runID, r.Epoch, r.BestLoss, len(r.History))
	}

	plateau := cfg.Plateau
	if plateau == (PlateauConfig{}) {
		plateau = DefaultPlateau
	}
	opt := NewAdam(AdamConfig{LR: cfg.LearningRate})
	var obs Observer = newProgress(cfg.LogEvery)
	if cfg.Observer != nil {
		obs = multiObserver{obs, cfg.Observer}
	}
	loop := &Loop{
		Epochs:          cfg.Epochs,
		CheckpointEvery: cfg.CheckpointEvery,
		Stepper: &pinnStepper{
			net:     net,
			dom:     cfg.Domain,
			counts:  cfg.Counts,
			vel:     cfg.Velocity,
			weights: cfg.Weights,
			rng:     rng,
			opt:     opt,
		},
		Saver: &checkpointSaver{
			writer: checkpoint.Writer{RunID: runID, Host: host},
			net:    net,
			path:   cfg.ModelPath,
		},
		Scheduler: NewPlateau(opt, plateau),
		Observer:  obs,
		Resume:    cfg.Resume,
	}

	out, runErr := loop.Run(ctx)
	res := &Result{
		RunID:     runID,
		Network:   net,
		History:   out.History,
		BestLoss:  out.BestLoss,
		BestEpoch: out.BestEpoch,
	}
	log.Printf("run=%s event=done epochs=%d best_loss=%.4e best_epoch=%d", runID, len(out.History), out.BestLoss, out.BestEpoch)

	if cfg.HistoryPath != "" {
		if err := out.History.Save(cfg.HistoryPath); err != nil {
			return res, errors.Join(runErr, err)
		}
		log.Printf("run=%s event=history_saved path=%s", runID, cfg.HistoryPath)
	}
	return res, runErr
}

type multiObserver []Observer

func (m multiObserver) Observe(s EpochStats) {
	for _, o := range m {
		o.Observe(s)
	}
}

// pinnStepper samples a batch, builds the physics-informed loss on a fresh
// tape and applies one Adam update per epoch.
type pinnStepper struct {
	net     *model.Network
	dom     domain.Domain
	counts  dataset.Counts
	vel     physics.Velocity
	weights loss.Weights
	rng     *rand.Rand
	opt     *Adam

	batch *dataset.Batch
	tape  *autodiff.Tape
	bound *model.Bound
	total *autodiff.Node
}

func (s *pinnStepper) Sample(int) (int, error) {
	b, err := dataset.Generate(s.dom, s.counts, s.rng)
	if err != nil {
		return 0, err
	}
	s.batch = b
	return b.Size(), nil
}

func (s *pinnStepper) Loss() (loss.Components, error) {
	s.tape = autodiff.NewTape()
	s.bound = s.net.Bind(s.tape)
	total, c, err := loss.Compose(s.bound, s.batch, s.vel, s.weights)
	if err != nil {
		return loss.Components{}, err
	}
	s.total = total
	return c, nil
}

func (s *pinnStepper) Apply() error {
	if s.total == nil {
		return errors.New("trainer: no loss to apply")
	}
	if err := s.tape.Backward(s.total); err != nil {
		return err
	}
	nodes := s.bound.Params()
	grads := make([]*mat.Dense, len(nodes))
	for i, n := range nodes {
		grads[i] = n.Grad()
	}
	s.total = nil
	return s.opt.Step(s.net.Params(), grads)
}

type checkpointSaver struct {
	writer checkpoint.Writer
	net    *model.Network
	path   string
}

func (s *checkpointSaver) SaveBest(epoch int, loss float64) error {
	_, err := s.writer.SaveBest(s.net, s.path, checkpoint.Progress{Epoch: epoch + 1, Loss: loss})
	return err
}

func (s *checkpointSaver) SavePeriodic(completed int, loss float64) error {
	_, err := s.writer.SavePeriodic(s.net, s.path, checkpoint.Progress{Epoch: completed, Loss: loss})
	return err
}

// hostDescription names the CPU and the vector extensions the matrix
// kernels can use. It is stored in every checkpoint the run writes.
func hostDescription() string {
	return fmt.Sprintf("%s cores=%d avx2=%t fma=%t",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.FMA3))
}
