package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"wavepinn/internal/dataset"
	"wavepinn/internal/domain"
	"wavepinn/internal/loss"
	"wavepinn/internal/model"
	"wavepinn/internal/physics"
	"wavepinn/internal/trainer"
)

// Defaults applied by Validate to unset fields.
const (
	DefaultSeed            = 42
	DefaultLearningRate    = 1e-3
	DefaultMinLearningRate = 1e-6
	DefaultPlateauFactor   = 0.5
	DefaultPlateauPatience = 1000
	DefaultLogEvery        = 50
	DefaultCheckpointEvery = 500
	DefaultName            = "run"
)

// VelocityConfig selects a wave-speed field and its coefficients.
type VelocityConfig struct {
	Kind           string `yaml:"kind"`
	physics.Params `yaml:",inline"`
}

// Config captures the runtime knobs for a training run.
type Config struct {
	Name string `yaml:"name"`

	XBounds domain.Interval  `yaml:"x_bounds"`
	YBounds *domain.Interval `yaml:"y_bounds,omitempty"`
	TBounds domain.Interval  `yaml:"t_bounds"`

	Velocity VelocityConfig `yaml:"velocity"`

	LearningRate    float64 `yaml:"learning_rate"`
	MinLearningRate float64 `yaml:"min_learning_rate"`
	PlateauFactor   float64 `yaml:"plateau_factor"`
	// PlateauPatience is the number of stalled epochs tolerated before the
	// rate is cut. Zero cuts on the first stall; unset means 1000.
	PlateauPatience *int `yaml:"plateau_patience,omitempty"`
	Epochs          int  `yaml:"epochs"`

	NIC  int `yaml:"n_ic"`
	NBC  int `yaml:"n_bc"`
	NPDE int `yaml:"n_pde"`

	Layers     []int  `yaml:"layers"`
	Activation string `yaml:"activation"`
	// NormalizeInputs defaults to true for 2D domains and false for 1D.
	NormalizeInputs *bool `yaml:"normalize_inputs,omitempty"`

	Weights loss.Weights `yaml:"weights"`

	ModelPath       string `yaml:"model_path"`
	HistoryPath     string `yaml:"history_path"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	LogEvery        int    `yaml:"log_every"`
	Seed            int64  `yaml:"seed"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Epochs          int
	LearningRate    float64
	Seed            int64
	LogEvery        int
	CheckpointEvery int
	ModelPath       string
	HistoryPath     string
}

// Load reads and validates a Config from YAML. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML without validating it.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config is empty")
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.CheckpointEvery > 0 {
		c.CheckpointEvery = o.CheckpointEvery
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.HistoryPath != "" {
		c.HistoryPath = o.HistoryPath
	}
}

// Validate fills defaults and verifies the config is runnable. An unknown
// velocity kind is rejected here, before any training starts.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	c.applyDefaults()

	d, err := c.Domain()
	if err != nil {
		return err
	}
	v, err := c.VelocityField()
	if err != nil {
		return err
	}
	if err := physics.CheckDims(v, d.SpatialDims()); err != nil {
		return err
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if err := c.Counts().Validate(); err != nil {
		return err
	}
	spec, err := c.ModelSpec()
	if err != nil {
		return err
	}
	if spec.Inputs() != d.Dims() {
		return fmt.Errorf("layers[0] must be %d for a domain with %d spatial axes (got %d)", d.Dims(), d.SpatialDims(), spec.Inputs())
	}
	if c.PlateauFactor <= 0 || c.PlateauFactor >= 1 {
		return fmt.Errorf("plateau_factor must be in (0, 1) (got %g)", c.PlateauFactor)
	}
	if *c.PlateauPatience < 0 {
		return fmt.Errorf("plateau_patience must be >= 0 (got %d)", *c.PlateauPatience)
	}
	if c.MinLearningRate > c.LearningRate {
		return fmt.Errorf("min_learning_rate %g exceeds learning_rate %g", c.MinLearningRate, c.LearningRate)
	}
	w := c.Weights
	if w.PDE < 0 || w.ICU < 0 || w.ICV < 0 || w.BC < 0 {
		return fmt.Errorf("loss weights must be >= 0 (got %+v)", w)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.LearningRate <= 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.MinLearningRate <= 0 {
		c.MinLearningRate = DefaultMinLearningRate
	}
	if c.PlateauFactor == 0 {
		c.PlateauFactor = DefaultPlateauFactor
	}
	if c.PlateauPatience == nil {
		patience := DefaultPlateauPatience
		c.PlateauPatience = &patience
	}
	if c.LogEvery <= 0 {
		c.LogEvery = DefaultLogEvery
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.Weights == (loss.Weights{}) {
		c.Weights = loss.Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1}
	}
	if c.ModelPath == "" {
		c.ModelPath = filepath.Join("resultados", c.Name, "modelo", "best_model.gob")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join("resultados", c.Name, "training_history.csv")
	}
}

// Domain builds the space-time box.
func (c *Config) Domain() (domain.Domain, error) {
	spatial := []domain.Interval{c.XBounds}
	if c.YBounds != nil {
		spatial = append(spatial, *c.YBounds)
	}
	return domain.New(c.TBounds, spatial...)
}

// VelocityField builds the configured wave-speed field.
func (c *Config) VelocityField() (physics.Velocity, error) {
	v, err := physics.NewVelocity(c.Velocity.Kind, c.Velocity.Params)
	if err != nil {
		return nil, fmt.Errorf("velocity: %w", err)
	}
	return v, nil
}

// Counts returns the per-epoch sample sizes.
func (c *Config) Counts() dataset.Counts {
	return dataset.Counts{IC: c.NIC, BC: c.NBC, PDE: c.NPDE}
}

// Normalized reports whether inputs are rescaled to [-1, 1].
func (c *Config) Normalized() bool {
	if c.NormalizeInputs != nil {
		return *c.NormalizeInputs
	}
	return c.YBounds != nil
}

// ModelSpec returns the network architecture.
func (c *Config) ModelSpec() (model.Spec, error) {
	act, err := model.ParseActivation(c.Activation)
	if err != nil {
		return model.Spec{}, err
	}
	spec := model.Spec{Widths: append([]int(nil), c.Layers...), Activation: act}
	if c.Normalized() {
		d, err := c.Domain()
		if err != nil {
			return model.Spec{}, err
		}
		spec.Bounds = d.Axes()
	}
	if err := spec.Validate(); err != nil {
		return model.Spec{}, err
	}
	return spec, nil
}

// RunConfig converts a validated Config into the trainer's input.
func (c *Config) RunConfig() (trainer.RunConfig, error) {
	if err := c.Validate(); err != nil {
		return trainer.RunConfig{}, err
	}
	d, _ := c.Domain()
	v, _ := c.VelocityField()
	spec, _ := c.ModelSpec()
	return trainer.RunConfig{
		Domain:       d,
		Velocity:     v,
		Model:        spec,
		Counts:       c.Counts(),
		Weights:      c.Weights,
		LearningRate: c.LearningRate,
		Plateau: trainer.PlateauConfig{
			Factor:   c.PlateauFactor,
			Patience: *c.PlateauPatience,
			MinLR:    c.MinLearningRate,
		},
		Epochs:          c.Epochs,
		ModelPath:       c.ModelPath,
		HistoryPath:     c.HistoryPath,
		CheckpointEvery: c.CheckpointEvery,
		LogEvery:        c.LogEvery,
		Seed:            c.Seed,
	}, nil
}
