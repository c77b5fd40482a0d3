// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

const (
	// defaultFailureThreshold bounds how many consecutive transient read
	// failures a monitor tolerates before stopping itself.
	defaultFailureThreshold = 5

	// defaultStopTimeout bounds how long Stop waits for the sampling
	// loop to acknowledge termination.
	defaultStopTimeout = 5 * time.Second
)

type Opts struct {
	logger           *slog.Logger
	clock            clock.WithTicker
	interval         time.Duration
	failureThreshold int
	stopTimeout      time.Duration
}

// DefaultOpts returns a new Opts with defaults set.
func DefaultOpts() Opts {
	return Opts{
		logger:           slog.Default(),
		clock:            clock.RealClock{},
		interval:         1 * time.Second,
		failureThreshold: defaultFailureThreshold,
		stopTimeout:      defaultStopTimeout,
	}
}

// OptionFn sets one or more options in the Opts struct.
type OptionFn func(*Opts)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock; tests inject a fake one.
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithInterval sets the sampling interval. Must be positive.
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithFailureThreshold sets the consecutive transient failure budget.
func WithFailureThreshold(n int) OptionFn {
	return func(o *Opts) {
		o.failureThreshold = n
	}
}

// WithStopTimeout sets the bounded wait of Stop.
func WithStopTimeout(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.stopTimeout = d
	}
}
