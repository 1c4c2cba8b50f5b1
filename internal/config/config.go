// Package config loads the optional wacrypt YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Workers  int    `yaml:"workers"`
	MaxIV    int    `yaml:"maxIV"`
	MaxDB    int    `yaml:"maxDB"`
	LogLevel string `yaml:"logLevel"`
	NoColor  bool   `yaml:"noColor"`
}

func Default() Config {
	return Config{
		Workers:  10,
		MaxIV:    200,
		MaxDB:    200,
		LogLevel: "info",
	}
}

// Load reads the YAML file at path. An empty path returns Default. Keys
// missing from the file keep their default values.
func Load(path string) (Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if config.Workers < 1 {
		return Config{}, fmt.Errorf("config: workers must be at least 1, got %d", config.Workers)
	}
	if config.MaxIV < 1 || config.MaxDB < 1 {
		return Config{}, fmt.Errorf("config: search bounds must be positive, got maxIV=%d maxDB=%d", config.MaxIV, config.MaxDB)
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config, nil
}
