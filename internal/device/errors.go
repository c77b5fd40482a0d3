// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
)

// Every failure of PowerSource.Read falls in exactly one of three classes.
// Sampling loops absorb Transient and Unavailable and treat Permanent as
// fatal to the source, so implementations must classify carefully: a
// momentarily busy sysfs node is transient, an unsupported device is not.
var (
	// ErrTransient marks failures that may succeed on a later read.
	ErrTransient = errors.New("transient read failure")

	// ErrPermanent marks failures that will never succeed for this source.
	ErrPermanent = errors.New("permanent read failure")

	// ErrUnavailable marks reads that produced no data yet, such as the
	// first sample of a rate derived from an energy counter.
	ErrUnavailable = errors.New("no data available")
)

// Transient wraps err so that it reports as retryable.
func Transient(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// Permanent wraps err so that it reports as fatal to the source.
func Permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}

// Unavailable wraps err so that it reports as "no data yet".
func Unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
