// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/credprov/cpdeploy/internal/retry"
	iu "github.com/credprov/cpdeploy/internal/util"
	"github.com/credprov/cpdeploy/metrics"
	"github.com/credprov/cpdeploy/model"
)

// Fetcher ensures a current local copy of a remote bundle exists,
// avoiding the transfer entirely when the staged copy is already
// byte-for-byte current by declared length
type Fetcher struct {
	log    model.Logger
	client *http.Client
	policy retry.Policy
}

func New(log model.Logger, policy retry.Policy) (*Fetcher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Fetcher{
		log:    log,
		client: http.DefaultClient,
		policy: policy,
	}, nil
}

// EnsureLocal downloads source to destination unless the local file length
// already equals the declared remote length.
//
// The probe and transfer are retried per the configured policy. A
// canceled context yields (false, nil), the transfer is simply not
// done, every other exhausted failure is returned as an aggregate of
// all attempts.
func (f *Fetcher) EnsureLocal(ctx context.Context, source string, destination string) (bool, error) {
	uri, err := url.Parse(source)
	if err != nil {
		return false, fmt.Errorf("%w: %w", model.ErrInvalidSource, err)
	}

	err = f.policy.Do(ctx, func(try int) error {
		if try > 1 {
			f.log.Warn("Retrying download", "try", try)
			metrics.RetryAttemptCount.WithLabelValues("download").Inc()
		}

		return f.attempt(ctx, uri, destination)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.log.Warn("Download canceled", "url", iu.RedactUrlCredentials(uri))
		return false, nil
	default:
		return false, err
	}
}

// attempt is one full probe and transfer cycle
func (f *Fetcher) attempt(ctx context.Context, uri *url.URL, destination string) error {
	if size, ok := iu.FileSize(destination); ok {
		f.log.Info("Determining if bundle is already downloaded", "file", destination)

		length, err := f.remoteLength(ctx, uri)
		if err == nil && length == size {
			f.log.Info("Bundle already downloaded", "bytes", size)
			metrics.DownloadSkippedCount.WithLabelValues(uri.Host).Inc()
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("Size probe failed, downloading", "error", err)
		}
	}

	return f.download(ctx, uri, destination)
}

// remoteLength probes the source for its declared content length without
// transferring the body
func (f *Fetcher) remoteLength(ctx context.Context, uri *url.URL) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri.String(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: HTTP request failed with status %d: %s", model.ErrRequestFailed, resp.StatusCode, resp.Status)
	}

	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("%w: no content length declared", model.ErrRequestFailed)
	}

	return resp.ContentLength, nil
}

func (f *Fetcher) download(ctx context.Context, uri *url.URL, destination string) error {
	f.log.Info("Downloading bundle", "url", iu.RedactUrlCredentials(uri))

	err := os.MkdirAll(filepath.Dir(destination), 0755)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return err
	}

	timer := prometheus.NewTimer(metrics.DownloadTime.WithLabelValues(uri.Host))
	defer timer.ObserveDuration()

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP request failed with status %d: %s", model.ErrRequestFailed, resp.StatusCode, resp.Status)
	}

	tf, err := os.CreateTemp(filepath.Dir(destination), fmt.Sprintf("%s-*", filepath.Base(destination)))
	if err != nil {
		return err
	}

	copied, err := io.Copy(tf, resp.Body)
	if err != nil {
		tf.Close()
		f.removePartial(tf.Name())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("could not copy bundle: %w", err)
	}

	err = tf.Close()
	if err != nil {
		f.removePartial(tf.Name())
		return err
	}

	err = os.Rename(tf.Name(), destination)
	if err != nil {
		f.removePartial(tf.Name())
		return err
	}

	f.log.Info("Bundle downloaded", "bytes", copied)

	return nil
}

// removePartial deletes a partially written transfer, failures here are
// logged and swallowed so they never mask the originating error
func (f *Fetcher) removePartial(path string) {
	err := retry.Cleanup.Do(context.Background(), func(int) error {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		f.log.Warn("Could not remove partial download", "file", path, "error", err)
	}
}
