// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"fmt"
	"time"

	"github.com/credprov/cpdeploy/internal/retry"
	"github.com/credprov/cpdeploy/model"
)

// Option is a functional option for configuring the Deployer
type Option func(*Deployer) error

// WithLogger sets the logger the pipeline reports progress to
func WithLogger(log model.Logger) Option {
	return func(d *Deployer) error {
		d.log = log

		return nil
	}
}

// WithSourceUrl overrides the well known default source location
func WithSourceUrl(url string) Option {
	return func(d *Deployer) error {
		if url == "" {
			return fmt.Errorf("%w: url cannot be empty", model.ErrInvalidSource)
		}

		d.prop.Url = url

		return nil
	}
}

// WithFilters overrides the default .exe, .dll and .config filter set
func WithFilters(filters ...string) Option {
	return func(d *Deployer) error {
		d.prop.Filters = filters

		return nil
	}
}

// WithStagingDir overrides the system temp directory as the bundle cache
func WithStagingDir(dir string) Option {
	return func(d *Deployer) error {
		d.prop.StagingDir = dir

		return nil
	}
}

// WithRetryPolicy overrides the default download retry policy
func WithRetryPolicy(interval time.Duration, attempts int) Option {
	return func(d *Deployer) error {
		if interval <= 0 {
			return fmt.Errorf("retry interval must be positive")
		}

		d.policy = retry.Policy{Interval: interval, Attempts: attempts}

		return nil
	}
}
