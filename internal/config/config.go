// Package config loads the planner's configuration: tuning constants
// (tctx.TrainerCtxs), the baseline 3D-parallel args, and the solver and
// logging knobs, via the repository's standard viper/yaml loader.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/khryptorgraphics/elasticplan/pkg/tctx"
)

// Config is the complete planner configuration.
type Config struct {
	Trainer  TrainerConfig  `yaml:"trainer"`
	Baseline BaselineConfig `yaml:"baseline"`
	Solver   SolverConfig   `yaml:"solver"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TrainerConfig mirrors tctx.TrainerCtxs for YAML decoding.
type TrainerConfig struct {
	HeteroTPAlpha      []float64 `yaml:"hetero_tp_alpha"`
	HeteroTPWeight     []float64 `yaml:"hetero_tp_weight"`
	StragglerThreshold float64   `yaml:"straggler_threshold"`
	StragglerSafeGap   float64   `yaml:"straggler_safe_gap"`
	MemoryBound        float64   `yaml:"memory_bound"`
	MemorySafeGap      float64   `yaml:"memory_safe_gap"`
	MemoryK            []float64 `yaml:"memory_k"`
	MemoryEmbedding    float64   `yaml:"memory_embedding"`
	MemoryExtra        float64   `yaml:"memory_extra"`
	NormalLayers       int       `yaml:"normal_layers"`
	NormalMBN          int       `yaml:"normal_mbn"`
	TopK               int       `yaml:"top_k"`
}

// ToTrainerCtxs converts the YAML-friendly shape to tctx.TrainerCtxs.
func (t TrainerConfig) ToTrainerCtxs() tctx.TrainerCtxs {
	return tctx.TrainerCtxs{
		HeteroTPAlpha:      t.HeteroTPAlpha,
		HeteroTPWeight:     t.HeteroTPWeight,
		StragglerThreshold: t.StragglerThreshold,
		StragglerSafeGap:   t.StragglerSafeGap,
		MemoryBound:        t.MemoryBound,
		MemorySafeGap:      t.MemorySafeGap,
		MemoryK:            t.MemoryK,
		MemoryEmbedding:    t.MemoryEmbedding,
		MemoryExtra:        t.MemoryExtra,
		NormalLayers:       t.NormalLayers,
		NormalMBN:          t.NormalMBN,
		TopK:               t.TopK,
	}
}

// BaselineConfig is the baseline 3D-parallel arrangement plus the model
// shape the planner balances layers and micro-batches over.
type BaselineConfig struct {
	DP           int  `yaml:"dp"`
	TP           int  `yaml:"tp"`
	PP           int  `yaml:"pp"`
	Zero         bool `yaml:"zero"`
	NumLayers    int  `yaml:"num_layers"`
	MicroBatches int  `yaml:"micro_batches"`
}

// SolverConfig tunes the branch-and-bound ILP solver.
type SolverConfig struct {
	TimeLimit       time.Duration `yaml:"time_limit"`
	OnlyAdjustBatch bool          `yaml:"only_adjust_batch"`
}

// LoggingConfig controls the zerolog global level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the planner's defaults, tuned for an 8-GPU node
// running a GPT-style model at normal_layers=4, normal_mbn=4 baseline.
func DefaultConfig() *Config {
	return &Config{
		Trainer: TrainerConfig{
			HeteroTPAlpha:      []float64{1.0, 1.3, 1.6, 2.0},
			HeteroTPWeight:     []float64{1.0, 0.9, 0.8, 0.7},
			StragglerThreshold: 1.2,
			StragglerSafeGap:   0.05,
			MemoryBound:        80 * 1024 * 1024 * 1024,
			MemorySafeGap:      2 * 1024 * 1024 * 1024,
			MemoryK:            []float64{1.0, 1.0, 1.0, 1.0},
			MemoryEmbedding:    512 * 1024 * 1024,
			MemoryExtra:        1024 * 1024 * 1024,
			NormalLayers:       4,
			NormalMBN:          4,
			TopK:               3,
		},
		Baseline: BaselineConfig{
			DP:           2,
			TP:           2,
			PP:           2,
			Zero:         true,
			NumLayers:    8,
			MicroBatches: 8,
		},
		Solver: SolverConfig{
			TimeLimit:       2 * time.Second,
			OnlyAdjustBatch: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configFile (or the standard search path, if empty) via
// viper, overlaying it onto DefaultConfig, then validates the result.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("planner")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.elasticplan")
		viper.AddConfigPath("/etc/elasticplan")
	}

	viper.SetEnvPrefix("ELASTICPLAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to filename via viper.
func (c *Config) Save(filename string) error {
	viper.Set("trainer", c.Trainer)
	viper.Set("baseline", c.Baseline)
	viper.Set("solver", c.Solver)
	viper.Set("logging", c.Logging)
	return viper.WriteConfigAs(filename)
}
