package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the model server configuration file.
type Config struct {
	// Lattice is the beamline file.
	Lattice string `yaml:"lattice"`

	// DataMaps is the datamap file.
	DataMaps string `yaml:"datamaps"`

	// Select names the datamaps to use, in order. Empty selects all.
	Select []string `yaml:"select,omitempty"`

	// PVData is a JSON snapshot of machine PV values used as defaults.
	PVData string `yaml:"pvdata,omitempty"`

	Prefix  string `yaml:"prefix,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Monitor *bool  `yaml:"monitor,omitempty"`
}

// LoadConfig reads a config file. Relative paths inside it are resolved
// against the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Lattice, &cfg.DataMaps, &cfg.PVData} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return &cfg, cfg.Validate()
}

// Validate checks required fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Lattice == "" {
		errs = append(errs, errors.New("lattice is required"))
	}
	if c.DataMaps == "" {
		errs = append(errs, errors.New("datamaps is required"))
	}
	return errors.Join(errs...)
}
