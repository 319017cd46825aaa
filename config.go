package estiva

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of a local bundle. Zero values fall back to
// defaults when the bundle is constructed.
type Config struct {
	// Workers is the size of the local backend's worker pool.
	Workers int `yaml:"workers"`

	// QueueCapacity bounds the local backend's task queue.
	QueueCapacity int `yaml:"queue_capacity"`

	// Threads and GPUs are handed to every protocol execution.
	Threads int `yaml:"threads"`
	GPUs    int `yaml:"gpus"`

	// StorageRoot is where stored data directories are copied.
	StorageRoot string `yaml:"storage_root"`

	// WorkDir is the root for per-request working directories.
	WorkDir string `yaml:"work_dir"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// withDefaults fills in unset fields.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.StorageRoot == "" {
		c.StorageRoot = "estiva-data"
	}
	if c.WorkDir == "" {
		c.WorkDir = "estiva-work"
	}
	return c
}
