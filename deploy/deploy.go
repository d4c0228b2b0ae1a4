// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package deploy composes the fetcher and extractor into the credential
// provider bundle deployment pipeline
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"

	"github.com/credprov/cpdeploy/extractor"
	"github.com/credprov/cpdeploy/fetcher"
	"github.com/credprov/cpdeploy/internal/retry"
	"github.com/credprov/cpdeploy/metrics"
	"github.com/credprov/cpdeploy/model"
)

// Deployer fetches the credential provider bundle and populates a
// destination directory from it
type Deployer struct {
	prop      *model.BundleProperties
	host      string
	log       model.Logger
	policy    retry.Policy
	fetcher   *fetcher.Fetcher
	extractor *extractor.Extractor
}

// New creates a Deployer, the source reference is validated here before
// any I/O happens
func New(opts ...Option) (*Deployer, error) {
	d := &Deployer{
		prop: &model.BundleProperties{
			Url:     model.DefaultSourceUrl,
			Filters: model.DefaultFilters,
		},
		policy: retry.Default,
	}

	for _, opt := range opts {
		err := opt(d)
		if err != nil {
			return nil, err
		}
	}

	err := d.prop.Validate()
	if err != nil {
		return nil, err
	}

	uri, err := url.Parse(d.prop.Url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidSource, err)
	}
	d.host = uri.Host

	if d.log == nil {
		d.log = NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	d.log = d.log.With("run", ksuid.New().String())

	d.fetcher, err = fetcher.New(d.log, d.policy)
	if err != nil {
		return nil, err
	}

	d.extractor, err = extractor.New(d.log)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Deploy stages the bundle locally and extracts the filtered entries
// into destination.
//
// It returns (false, nil) when the download was skipped because of
// cancellation and (false, err) for every other unrecovered failure.
func (d *Deployer) Deploy(ctx context.Context, destination string) (bool, error) {
	if destination == "" {
		return false, model.ErrDestinationRequired
	}

	timer := prometheus.NewTimer(metrics.DeployTime.WithLabelValues(d.host))
	defer timer.ObserveDuration()

	staging := d.prop.StagingPath()
	d.log.Debug("Staging bundle", "file", staging)

	ok, err := d.fetcher.EnsureLocal(ctx, d.prop.Url, staging)
	if err != nil {
		d.log.Error("Download failed", "error", err)
		return false, err
	}
	if !ok {
		d.log.Warn("Bundle was not downloaded, skipping extraction")
		return false, nil
	}

	err = d.extractor.Extract(ctx, staging, destination, d.prop.Filters)
	if err != nil {
		d.log.Error("Extraction failed", "error", err)
		return false, err
	}

	d.log.Info("Bundle deployed", "destination", destination)

	return true, nil
}

// Properties exposes the resolved bundle properties, mainly for the CLI
// to report what it is about to do
func (d *Deployer) Properties() model.BundleProperties {
	return *d.prop
}
