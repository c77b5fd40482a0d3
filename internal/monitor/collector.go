// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Collector treats a named set of monitors as one controllable unit.
// Monitors keep their insertion order for start/stop fan-out and result
// assembly; no monitor is shared between collectors.
type Collector struct {
	logger *slog.Logger
	clock  clock.WithTicker

	mu       sync.Mutex
	order    []string
	monitors map[string]*Monitor
	state    State
}

// CollectorOptionFn configures a Collector.
type CollectorOptionFn func(*Collector)

// WithCollectorLogger sets the logger.
func WithCollectorLogger(logger *slog.Logger) CollectorOptionFn {
	return func(c *Collector) {
		c.logger = logger.With("service", "collector")
	}
}

// WithCollectorClock sets the clock used by CollectFor.
func WithCollectorClock(cl clock.WithTicker) CollectorOptionFn {
	return func(c *Collector) {
		c.clock = cl
	}
}

func NewCollector(opts ...CollectorOptionFn) *Collector {
	c := &Collector{
		logger:   slog.Default().With("service", "collector"),
		clock:    clock.RealClock{},
		monitors: map[string]*Monitor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers a monitor under its name. Names must be unique.
func (c *Collector) Add(m *Monitor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.monitors[m.Name()]; dup {
		return fmt.Errorf("collector already has a monitor named %q", m.Name())
	}
	c.order = append(c.order, m.Name())
	c.monitors[m.Name()] = m
	return nil
}

// Monitors returns the contained monitors in insertion order.
func (c *Collector) Monitors() []*Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()

	ret := make([]*Monitor, 0, len(c.order))
	for _, name := range c.order {
		ret = append(ret, c.monitors[name])
	}
	return ret
}

// Start starts every monitor in insertion order. If any start fails, the
// monitors already started are stopped again; a partial start is never
// left running.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return nil
	}
	if len(c.order) == 0 {
		return fmt.Errorf("collector has no monitors")
	}

	started := make([]*Monitor, 0, len(c.order))
	for _, name := range c.order {
		m := c.monitors[name]
		if err := m.Start(); err != nil {
			c.logger.Error("Monitor failed to start, rolling back", "monitor", name, "error", err)
			for i := len(started) - 1; i >= 0; i-- {
				if _, stopErr := started[i].Stop(); stopErr != nil {
					c.logger.Warn("Rollback stop failed", "monitor", started[i].Name(), "error", stopErr)
				}
			}
			return fmt.Errorf("starting monitor %q: %w", name, err)
		}
		started = append(started, m)
	}

	c.state = StateRunning
	c.logger.Info("Collector started", "monitors", len(started))
	return nil
}

// Stop stops every monitor regardless of individual failures and returns
// the collected readings keyed by monitor name. Per-monitor stop errors
// are aggregated into the returned error but never hide another monitor's
// data: the map always holds an entry for every monitor.
func (c *Collector) Stop() (map[string][]Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make(map[string][]Reading, len(c.order))
	var errs []error
	for _, name := range c.order {
		readings, err := c.monitors[name].Stop()
		results[name] = readings
		if err != nil {
			errs = append(errs, fmt.Errorf("stopping monitor %q: %w", name, err))
		}
	}

	c.state = StateStopped
	c.logger.Info("Collector stopped", "monitors", len(results))
	return results, errors.Join(errs...)
}

// CollectFor starts all monitors, waits for the given duration (or until
// ctx is cancelled) and stops them, returning the merged dataset. The wait
// issues no hardware calls itself; deadline handling of the wait is the
// caller's business via ctx.
func (c *Collector) CollectFor(ctx context.Context, d time.Duration) (map[string][]Reading, error) {
	if err := c.Start(); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		results, stopErr := c.Stop()
		return results, errors.Join(ctx.Err(), stopErr)
	case <-c.clock.After(d):
	}

	return c.Stop()
}

// Health reports, per monitor, why it degraded; monitors without a fault
// map to a nil error.
func (c *Collector) Health() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ret := make(map[string]error, len(c.order))
	for _, name := range c.order {
		ret[name] = c.monitors[name].LastError()
	}
	return ret
}

// Name implements service.Service.
func (c *Collector) Name() string {
	return "collector"
}

// Run implements service.Runner for daemon mode: start everything, hold
// until the context ends, then stop. Per-monitor faults degrade monitors
// individually and are reported at shutdown, not escalated.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	if _, err := c.Stop(); err != nil {
		c.logger.Warn("Collector shutdown with degraded monitors", "error", err)
	}
	return nil
}
