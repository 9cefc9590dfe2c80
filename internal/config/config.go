package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir      string  `yaml:"data_dir"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Dropout      float64 `yaml:"dropout"`
	Hidden       []int   `yaml:"hidden"`
	Seed         int64   `yaml:"seed"`
	LogEvery     int     `yaml:"log_every"`
	VizDir       string  `yaml:"viz_dir"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir      string
	Epochs       int
	BatchSize    int
	LearningRate float64
	Dropout      float64
	Hidden       []int
	Seed         int64
	LogEvery     int
	VizDir       string
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Dropout > 0 {
		c.Dropout = o.Dropout
	}
	if len(o.Hidden) > 0 {
		c.Hidden = append([]int(nil), o.Hidden...)
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.VizDir != "" {
		c.VizDir = o.VizDir
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %f)", c.LearningRate)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1) (got %f)", c.Dropout)
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden sizes must be > 0 (got %d)", h)
		}
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 1
	}
	return nil
}
