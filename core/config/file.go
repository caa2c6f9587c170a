package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a hypercluster config file.
//
//	mode: multi-process
//	port: 8080
//	workers: 4
//	bus:
//	  driver: redis
//	  url: redis://localhost:6379/0
//	store:
//	  driver: postgres
//	  url: postgres://localhost/catalog
type File struct {
	Mode     string `yaml:"mode"`
	Port     int    `yaml:"port"`
	Workers  int    `yaml:"workers"`
	LogLevel int    `yaml:"log_level"`
	Bus      struct {
		Driver  string `yaml:"driver"`
		URL     string `yaml:"url"`
		Channel string `yaml:"channel"`
	} `yaml:"bus"`
	Store struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"store"`
}

// LoadFile reads and decodes a YAML config file. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var fc File
	if err := dec.Decode(&fc); err != nil {
		return nil, &Error{Field: "config file", Value: path, Reason: err.Error()}
	}
	return &fc, nil
}

func (f *File) apply(cfg *RunConfig, mode *string) {
	if f.Mode != "" {
		*mode = f.Mode
	}
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.Workers != 0 {
		cfg.WorkerCount = f.Workers
	}
	if f.LogLevel != 0 {
		cfg.LogLevel = f.LogLevel
	}
	if f.Bus.Driver != "" {
		cfg.Bus.Driver = f.Bus.Driver
	}
	if f.Bus.URL != "" {
		cfg.Bus.URL = f.Bus.URL
	}
	if f.Bus.Channel != "" {
		cfg.Bus.Channel = f.Bus.Channel
	}
	if f.Store.Driver != "" {
		cfg.Store.Driver = f.Store.Driver
	}
	if f.Store.URL != "" {
		cfg.Store.URL = f.Store.URL
	}
}
