// Package config loads the density profile pipeline configuration from
// YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mtypedensities"
)

// Config points the profile pipeline at its input tables and total density
// volumes.
type Config struct {
	// MTypeToProfileMapPath is the tsv file mapping each mtype to its
	// synapse class and profile name.
	MTypeToProfileMapPath string `yaml:"mtypeToProfileMapPath"`

	// LayerSlicesPath is the tsv file giving the slice count per layer.
	LayerSlicesPath string `yaml:"layerSlicesPath"`

	// DensityProfilesDirPath is the directory holding one
	// <profile name>.tsv file per profile.
	DensityProfilesDirPath string `yaml:"densityProfilesDirPath"`

	// ExcitatoryNeuronDensityPath and InhibitoryNeuronDensityPath locate
	// the total density nrrd volumes. Each is optional on its own; the
	// allocator rejects a run with neither.
	ExcitatoryNeuronDensityPath string `yaml:"excitatoryNeuronDensityPath"`
	InhibitoryNeuronDensityPath string `yaml:"inhibitoryNeuronDensityPath"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that every required key is present.
func (c *Config) Validate() error {
	var missing []string
	if c.MTypeToProfileMapPath == "" {
		missing = append(missing, "mtypeToProfileMapPath")
	}
	if c.LayerSlicesPath == "" {
		missing = append(missing, "layerSlicesPath")
	}
	if c.DensityProfilesDirPath == "" {
		missing = append(missing, "densityProfilesDirPath")
	}
	if len(missing) > 0 {
		return mtypedensities.Validationf(
			"the following keys are missing from the configuration file: %v", missing)
	}
	return nil
}
