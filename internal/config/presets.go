package config

import (
	"fmt"
	"sort"

	"wavepinn/internal/domain"
	"wavepinn/internal/loss"
	"wavepinn/internal/physics"
)

var presets = map[string]func() *Config{
	"constant": func() *Config {
		return &Config{
			Name:         "constant",
			XBounds:      domain.Interval{Min: 0, Max: 1},
			TBounds:      domain.Interval{Min: 0, Max: 1},
			Velocity:     VelocityConfig{Kind: string(physics.KindConstant), Params: physics.Params{C: 1}},
			LearningRate: 1e-3,
			Epochs:       20000,
			NIC:          200,
			NBC:          200,
			NPDE:         10000,
			Layers:       []int{2, 32, 32, 32, 32, 1},
			Weights:      loss.Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1},
		}
	},
	"variable": func() *Config {
		return &Config{
			Name:         "variable",
			XBounds:      domain.Interval{Min: 0, Max: 1},
			TBounds:      domain.Interval{Min: 0, Max: 1},
			Velocity:     VelocityConfig{Kind: string(physics.KindLinearIn1D), Params: physics.Params{Base: 1, Grad: 0.5}},
			LearningRate: 1e-3,
			Epochs:       30000,
			NIC:          200,
			NBC:          200,
			NPDE:         15000,
			Layers:       []int{2, 32, 32, 32, 32, 1},
			Weights:      loss.Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1},
		}
	},
	"wave2d": func() *Config {
		return &Config{
			Name:         "wave2d",
			XBounds:      domain.Interval{Min: 0, Max: 1},
			YBounds:      &domain.Interval{Min: 0, Max: 1},
			TBounds:      domain.Interval{Min: 0, Max: 1},
			Velocity:     VelocityConfig{Kind: string(physics.KindLinearIn2D), Params: physics.Params{Base: 1, GradX: 0.5, GradY: 0.3}},
			LearningRate: 1e-3,
			Epochs:       30000,
			NIC:          1000,
			NBC:          1000,
			NPDE:         20000,
			Layers:       []int{3, 40, 40, 40, 40, 1},
			Weights:      loss.Weights{PDE: 1, ICU: 1, ICV: 0.1, BC: 1},
		}
	},
}

// Preset returns a fresh, validated copy of a built-in experiment.
func Preset(name string) (*Config, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (have %v)", name, PresetNames())
	}
	cfg := build()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	return cfg, nil
}

// PresetNames lists the built-in experiments.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
