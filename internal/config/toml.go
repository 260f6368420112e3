// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Reshape  ReshapeConfig   `toml:"reshape"`
	Datasets []DatasetConfig `toml:"dataset"`
}

// ReshapeConfig maps batch-related settings.
type ReshapeConfig struct {
	InputDir     *string `toml:"input-dir"`
	OutputDir    *string `toml:"output-dir"`
	DataStartRow *int    `toml:"start-row"`
	NumDataRows  *int    `toml:"rows"`
	KeepGoing    *bool   `toml:"keep-going"`
	XLSX         *bool   `toml:"xlsx"`
	History      *bool   `toml:"history"`
}

// DatasetConfig names one input file and the aggregations to run on it.
type DatasetConfig struct {
	Name         string   `toml:"name"`
	Aggregations []string `toml:"aggregations"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	for i, ds := range cfg.Datasets {
		if ds.Name == "" {
			return FileConfig{}, fmt.Errorf("dataset %d: name is empty", i+1)
		}
	}
	return cfg, nil
}
