// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package retry implements a fixed interval retry policy.
//
// Every attempt's failure is collected so that an exhausted policy
// surfaces the full attempt history, not just the final error. The
// interval is deliberately constant, there is no backoff progression
// and no jitter.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Policy retries an operation a fixed number of times with a constant
// sleep between attempts
type Policy struct {
	// Interval is the constant sleep before every attempt after the first
	Interval time.Duration
	// Attempts is the total attempt budget, DefaultAttempts when zero
	Attempts int
}

// DefaultAttempts is the attempt budget used when a policy does not set one
const DefaultAttempts = 3

var (
	// Default is the policy used for network transfers
	Default = Policy{Interval: 10 * time.Second, Attempts: DefaultAttempts}

	// Cleanup is a short policy for best-effort file removal
	Cleanup = Policy{Interval: 100 * time.Millisecond, Attempts: DefaultAttempts}
)

// Do calls fn with the attempt number, starting at 1, until it returns nil
// or the attempt budget is exhausted.
//
// The first attempt runs immediately, later attempts are preceded by a
// sleep of Interval that the context can interrupt. When every attempt
// fails the returned error aggregates one entry per attempt. Context
// cancellation short-circuits remaining attempts and returns the context
// error without adding it to the aggregate.
func (p Policy) Do(ctx context.Context, fn func(try int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var errs error

	for try := 1; try <= attempts; try++ {
		if try > 1 {
			err := Sleep(ctx, p.Interval)
			if err != nil {
				return err
			}
		}

		err := fn(try)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", try, err))
	}

	return errs
}

// Sleep waits for duration d, it returns early with the context error
// when the context is canceled
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
