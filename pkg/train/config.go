// Package train orchestrates batching, optimization, and checkpointing for
// the scenario generator. The loop is single-threaded and synchronous: a run
// goes Idle -> Training -> periodic checkpointing -> Done, with no early
// stopping and no retries. A NaN or Inf loss is fatal and aborts immediately.
package train

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all training hyperparameters.
type Config struct {
	Epochs    int     `yaml:"epochs"`
	BatchSize int     `yaml:"batch_size"`
	// LearningRate is the Adam step size.
	LearningRate float64 `yaml:"learning_rate"`
	// PhysicsWeight is the lambda multiplying the physics-consistency
	// penalty. Zero trains pure data-fit.
	PhysicsWeight float64 `yaml:"physics_weight"`
	// CheckpointPath, when set, receives a checkpoint every
	// CheckpointEvery epochs and once more at the end of the run.
	CheckpointPath  string `yaml:"checkpoint_path"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
}

// DefaultConfig mirrors the baseline training setup.
func DefaultConfig() Config {
	return Config{
		Epochs:          100,
		BatchSize:       32,
		LearningRate:    0.001,
		PhysicsWeight:   0.1,
		CheckpointEvery: 10,
	}
}

// LoadConfig reads a YAML training configuration, applying defaults for
// absent fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading training config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing training config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("train: epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("train: learning rate must be positive, got %g", c.LearningRate)
	}
	if c.PhysicsWeight < 0 {
		return fmt.Errorf("train: physics weight must not be negative, got %g", c.PhysicsWeight)
	}
	if c.CheckpointPath != "" && c.CheckpointEvery <= 0 {
		return fmt.Errorf("train: checkpoint interval must be positive, got %d", c.CheckpointEvery)
	}
	return nil
}
