// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

// Sample is one instantaneous power measurement produced by a PowerSource,
// together with source specific metadata (temperature, utilization, paths).
type Sample struct {
	Power    Power
	Metadata map[string]string
}

// PowerSource produces power samples from one hardware or API backend.
// A failed Read must return an error classified as exactly one of
// ErrTransient, ErrPermanent or ErrUnavailable; see errors.go.
//
// Read may block on I/O (a BMC round trip can take hundreds of
// milliseconds) and must be safe to call from a single sampling goroutine.
// Sources that need setup or teardown additionally implement
// service.Initializer / service.Shutdowner.
type PowerSource interface {
	// Name returns a short identifier for the backend, e.g. "rapl".
	Name() string

	// Read returns the current power draw of the monitored target.
	Read() (Sample, error)
}
