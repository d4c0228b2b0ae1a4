// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/choria-io/fisk"

	"github.com/credprov/cpdeploy/config"
	"github.com/credprov/cpdeploy/deploy"
	"github.com/credprov/cpdeploy/internal/retry"
	"github.com/credprov/cpdeploy/metrics"
)

type deployCommand struct {
	destination string
	url         string
	filters     []string
	staging     string
	interval    time.Duration
	attempts    int
	monitorPort int
}

func registerDeployCommand(app *fisk.Application) {
	cmd := &deployCommand{}

	dep := app.Command("deploy", "Fetch the bundle and extract it").Action(cmd.deployAction)
	dep.Arg("destination", "Directory to extract the bundle into").Required().StringVar(&cmd.destination)
	dep.Flag("url", "URL to download the bundle from").PlaceHolder("URL").StringVar(&cmd.url)
	dep.Flag("filter", "Filename suffix to extract, repeat for more, * for all").PlaceHolder("SUFFIX").StringsVar(&cmd.filters)
	dep.Flag("staging", "Directory to cache the downloaded bundle in").PlaceHolder("DIR").ExistingDirVar(&cmd.staging)
	dep.Flag("retry-interval", "Time to wait between download attempts").DurationVar(&cmd.interval)
	dep.Flag("retry-attempts", "How many download attempts to make").IntVar(&cmd.attempts)
	dep.Flag("monitor-port", "Port to serve prometheus metrics on").IntVar(&cmd.monitorPort)
}

func (c *deployCommand) deployAction(_ *fisk.ParseContext) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	err = c.mergeConfig(cfg)
	if err != nil {
		return err
	}

	logger := newLogger()

	if c.monitorPort > 0 {
		metrics.RegisterMetrics()
		metrics.ListenAndServe(c.monitorPort, logger)
	}

	opts := []deploy.Option{deploy.WithLogger(logger)}

	if c.url != "" {
		opts = append(opts, deploy.WithSourceUrl(c.url))
	}
	if len(c.filters) > 0 {
		opts = append(opts, deploy.WithFilters(c.filters...))
	}
	if c.staging != "" {
		opts = append(opts, deploy.WithStagingDir(c.staging))
	}
	if policy, ok := c.retryPolicy(); ok {
		opts = append(opts, deploy.WithRetryPolicy(policy.Interval, policy.Attempts))
	}

	d, err := deploy.New(opts...)
	if err != nil {
		return err
	}

	ok, err := d.Deploy(ctx, c.destination)
	if err != nil {
		logger.Error("Deploy failed", "error", innermost(err))
		return err
	}
	if !ok {
		return fmt.Errorf("bundle was not deployed")
	}

	return nil
}

// mergeConfig layers the optional config file under the explicit flags
func (c *deployCommand) mergeConfig(cfg *config.Config) error {
	if c.url == "" {
		c.url = cfg.SourceUrl
	}
	if len(c.filters) == 0 {
		c.filters = cfg.Filters
	}
	if c.staging == "" {
		c.staging = cfg.StagingDir
	}
	if c.monitorPort == 0 {
		c.monitorPort = cfg.MonitorPort
	}
	if c.attempts == 0 {
		c.attempts = cfg.RetryAttempts
	}

	if c.interval == 0 {
		interval, err := cfg.Interval()
		if err != nil {
			return err
		}
		c.interval = interval
	}

	return nil
}

// retryPolicy resolves the retry overrides from flags and config, an
// attempts override without an interval keeps the default interval
func (c *deployCommand) retryPolicy() (retry.Policy, bool) {
	if c.interval <= 0 && c.attempts <= 0 {
		return retry.Policy{}, false
	}

	interval := c.interval
	if interval <= 0 {
		interval = retry.Default.Interval
	}

	return retry.Policy{Interval: interval, Attempts: c.attempts}, true
}

// innermost unwraps to the root cause, error sinks receive the innermost
// message text
func innermost(err error) error {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
}
