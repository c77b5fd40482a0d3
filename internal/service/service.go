// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is anything the process manages as a named unit.
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is a service with a setup phase that must complete before
// anything runs (opening hardware handles, connecting to a BMC).
type Initializer interface {
	Service
	Init() error
}

// Runner is a service with a blocking main loop. Run must return when ctx
// is cancelled and must be safe to run concurrently with other services.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is a service with cleanup to perform on termination.
type Shutdowner interface {
	Service
	Shutdown() error
}
