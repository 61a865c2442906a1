// Package config holds the mnemo configuration types and loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemo configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Memory   MemoryConfig   `yaml:"memory"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty = resolved via store.DefaultDBPath()
}

type SearchConfig struct {
	Path       string `yaml:"path"`       // vector index directory; empty = alongside the database
	Dimensions int    `yaml:"dimensions"` // embedding width
}

type MemoryConfig struct {
	MaxTurns         int `yaml:"max_turns"`         // working memory conversation window
	MaxRetrieved     int `yaml:"max_retrieved"`     // working memory pulled-in set
	ConsolidateEvery int `yaml:"consolidate_every"` // episodes between consolidation passes
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Search: SearchConfig{
			Dimensions: 256,
		},
		Memory: MemoryConfig{
			MaxTurns:         20,
			MaxRetrieved:     10,
			ConsolidateEvery: 10,
		},
	}
}

// Load reads a YAML config file, layered over the defaults. A missing
// file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
