package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavepinn/internal/domain"
	"wavepinn/internal/loss"
	"wavepinn/internal/model"
	"wavepinn/internal/physics"
)

const minimal = `
x_bounds: {min: 0, max: 2}
t_bounds: {min: 0, max: 1}
velocity: {kind: linear_1d, base: 1.0, grad: 0.5}
epochs: 10
n_ic: 4
n_bc: 4
n_pde: 8
layers: [2, 8, 1]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, DefaultName, cfg.Name)
	assert.Equal(t, DefaultLearningRate, cfg.LearningRate)
	assert.Equal(t, DefaultMinLearningRate, cfg.MinLearningRate)
	require.NotNil(t, cfg.PlateauPatience)
	assert.Equal(t, DefaultPlateauPatience, *cfg.PlateauPatience)
	assert.Equal(t, DefaultLogEvery, cfg.LogEvery)
	assert.Equal(t, DefaultCheckpointEvery, cfg.CheckpointEvery)
	assert.Equal(t, int64(DefaultSeed), cfg.Seed)
	assert.Equal(t, loss.Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1}, cfg.Weights)
	assert.Equal(t, filepath.Join("resultados", "run", "modelo", "best_model.gob"), cfg.ModelPath)
	assert.Equal(t, filepath.Join("resultados", "run", "training_history.csv"), cfg.HistoryPath)
	assert.False(t, cfg.Normalized())

	v, err := cfg.VelocityField()
	require.NoError(t, err)
	assert.Equal(t, physics.LinearIn1D{Base: 1, Grad: 0.5}, v)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, minimal+"batch_size: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	_, err := Load(writeConfig(t, ""))
	assert.Error(t, err)
}

func TestUnknownVelocityRejectedAtConfigTime(t *testing.T) {
	body := strings.Replace(minimal, "kind: linear_1d", "kind: quadratic", 1)
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.True(t, errors.Is(err, physics.ErrUnknownVelocity), "got %v", err)
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"inverted x":      func(c *Config) { c.XBounds = domain.Interval{Min: 1, Max: 0} },
		"no epochs":       func(c *Config) { c.Epochs = 0 },
		"no pde points":   func(c *Config) { c.NPDE = 0 },
		"input width":     func(c *Config) { c.Layers = []int{3, 8, 1} },
		"output width":    func(c *Config) { c.Layers = []int{2, 8, 2} },
		"activation":      func(c *Config) { c.Activation = "relu" },
		"2d velocity":     func(c *Config) { c.Velocity.Kind = "linear_2d" },
		"plateau factor":  func(c *Config) { c.PlateauFactor = 1.5 },
		"patience":        func(c *Config) { p := -1; c.PlateauPatience = &p },
		"negative weight": func(c *Config) { c.Weights = loss.Weights{PDE: -1} },
		"lr below floor":  func(c *Config) { c.LearningRate = 1e-7; c.MinLearningRate = 1e-6 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse(strings.NewReader(minimal))
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestZeroPatienceIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+"plateau_patience: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.PlateauPatience)
	assert.Equal(t, 0, *cfg.PlateauPatience)
	rc, err := cfg.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, rc.Plateau.Patience)
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := Parse(strings.NewReader(minimal))
	require.NoError(t, err)
	cfg.ApplyOverrides(Overrides{Epochs: 3, LearningRate: 5e-4, Seed: 7, ModelPath: "m.gob"})
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, 5e-4, cfg.LearningRate)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "m.gob", cfg.ModelPath)
	assert.Equal(t, 4, cfg.NIC, "zero overrides leave values alone")
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"constant", "variable", "wave2d"}, PresetNames())

	c, err := Preset("constant")
	require.NoError(t, err)
	assert.Equal(t, 20000, c.Epochs)
	assert.Equal(t, []int{2, 32, 32, 32, 32, 1}, c.Layers)
	assert.Equal(t, filepath.Join("resultados", "constant", "modelo", "best_model.gob"), c.ModelPath)

	v, err := Preset("variable")
	require.NoError(t, err)
	assert.Equal(t, 15000, v.NPDE)
	vel, err := v.VelocityField()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, vel.Evaluate([]float64{1}), 1e-12)

	w, err := Preset("wave2d")
	require.NoError(t, err)
	assert.True(t, w.Normalized())
	spec, err := w.ModelSpec()
	require.NoError(t, err)
	assert.Len(t, spec.Bounds, 3)
	assert.Equal(t, model.Tanh, spec.Activation)

	_, err = Preset("nope")
	assert.Error(t, err)
}

func TestPresetIsAFreshCopy(t *testing.T) {
	a, err := Preset("wave2d")
	require.NoError(t, err)
	a.YBounds.Max = 7
	a.Layers[1] = 1
	b, err := Preset("wave2d")
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.YBounds.Max)
	assert.Equal(t, 40, b.Layers[1])
}

func TestRunConfig(t *testing.T) {
	cfg, err := Preset("wave2d")
	require.NoError(t, err)
	rc, err := cfg.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, rc.Domain.SpatialDims())
	assert.Equal(t, physics.KindLinearIn2D, rc.Velocity.Kind())
	assert.Equal(t, 1000, rc.Counts.BC)
	assert.Equal(t, 1000, rc.Plateau.Patience)
	assert.Equal(t, 1e-6, rc.Plateau.MinLR)
	assert.NoError(t, rc.Validate())
}

func TestShippedConfigsLoad(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			fromFile, err := Load(filepath.Join("..", "..", "configs", name+".yaml"))
			require.NoError(t, err)
			preset, err := Preset(name)
			require.NoError(t, err)
			assert.Equal(t, preset.Epochs, fromFile.Epochs)
			assert.Equal(t, preset.Layers, fromFile.Layers)
			assert.Equal(t, preset.Counts(), fromFile.Counts())
			assert.Equal(t, preset.Weights, fromFile.Weights)
			assert.Equal(t, preset.Normalized(), fromFile.Normalized())
			assert.Equal(t, preset.ModelPath, fromFile.ModelPath)
		})
	}
}
