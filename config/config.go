// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional deployer configuration file,
// discovered in the user xdg config directory first and /etc second
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/goccy/go-yaml"

	iu "github.com/credprov/cpdeploy/internal/util"
)

// Config holds the optional file based overrides for the deployer, a
// missing file yields the zero value and explicit CLI flags win over it
type Config struct {
	SourceUrl     string   `yaml:"url"`
	Filters       []string `yaml:"filters"`
	StagingDir    string   `yaml:"staging_dir"`
	RetryInterval string   `yaml:"retry_interval"`
	RetryAttempts int      `yaml:"retry_attempts"`
	MonitorPort   int      `yaml:"monitor_port"`
}

// Load reads the first configuration file found in the discovery paths,
// a completely absent configuration is not an error
func Load() (*Config, error) {
	var path string
	var userFile = filepath.Join(xdg.ConfigHome, "cpdeploy", "config.yaml")
	var systemFile = "/etc/cpdeploy/config.yaml"

	if xdg.ConfigHome != "" && iu.FileExists(userFile) {
		path = userFile
	} else if iu.FileExists(systemFile) {
		path = systemFile
	}

	if path == "" {
		return &Config{}, nil
	}

	return LoadFile(path)
}

// LoadFile reads and parses a specific configuration file
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(raw, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}

	return cfg, nil
}

// Interval parses the configured retry interval, zero when unset
func (c *Config) Interval() (time.Duration, error) {
	if c.RetryInterval == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.RetryInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid retry_interval: %w", err)
	}

	return d, nil
}
