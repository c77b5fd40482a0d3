// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"log/slog"
	"os"
)

// Init runs the Init phase of every service that has one, in order. On the
// first failure it shuts down the services initialized so far (in reverse
// order) and returns the failure; partially initialized stacks are never
// left behind.
func Init(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var initErr error
	initialized := make([]Service, 0, len(services))

	for _, s := range services {
		ini, ok := s.(Initializer)
		if !ok {
			logger.Debug("skipping service initialization", "service", s.Name(),
				"reason", "service does not implement Initializer")
			continue
		}

		logger.Info("Initializing service", "service", s.Name())
		if err := ini.Init(); err != nil {
			initErr = fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
			break
		}
		initialized = append(initialized, s)
	}

	if initErr == nil {
		return nil
	}

	logger.Info("Shutting down initialized services")
	for i := len(initialized) - 1; i >= 0; i-- {
		sd, ok := initialized[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := sd.Shutdown(); err != nil {
			logger.Error("failed to shutdown service", "service", initialized[i].Name(), "error", err)
		}
	}
	return initErr
}
