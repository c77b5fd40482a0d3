// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/powerprof/powerprof/internal/device"
)

// Monitor samples one PowerSource at a fixed cadence and accumulates the
// readings. It owns its buffer exclusively: the sampling goroutine is the
// only writer and every accessor returns copies, serialized by one mutex
// that is held for appends and snapshots but never across a hardware read.
type Monitor struct {
	name             string
	source           device.PowerSource
	interval         time.Duration
	failureThreshold int
	stopTimeout      time.Duration
	clock            clock.WithTicker
	logger           *slog.Logger

	mu                  sync.Mutex
	state               State
	buffer              []Reading
	lastErr             error
	consecutiveFailures int
	stopCh              chan struct{}
	doneCh              chan struct{}
}

// New creates an idle monitor named name over source.
func New(name string, source device.PowerSource, applyOpts ...OptionFn) (*Monitor, error) {
	if name == "" {
		return nil, fmt.Errorf("monitor name cannot be empty")
	}
	if source == nil {
		return nil, fmt.Errorf("monitor %q: power source cannot be nil", name)
	}

	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	if opts.interval <= 0 {
		return nil, fmt.Errorf("monitor %q: sampling interval must be positive, got %s", name, opts.interval)
	}
	if opts.failureThreshold < 1 {
		return nil, fmt.Errorf("monitor %q: failure threshold must be at least 1, got %d", name, opts.failureThreshold)
	}

	return &Monitor{
		name:             name,
		source:           source,
		interval:         opts.interval,
		failureThreshold: opts.failureThreshold,
		stopTimeout:      opts.stopTimeout,
		clock:            opts.clock,
		logger:           opts.logger.With("service", "monitor", "monitor", name),
	}, nil
}

func (m *Monitor) Name() string {
	return m.name
}

// Source returns the monitor's power source, e.g. so callers can run its
// Init/Shutdown phases.
func (m *Monitor) Source() device.PowerSource {
	return m.source
}

func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start launches the sampling loop. Calling Start on a running monitor is
// a no-op; a stopped monitor starts again, keeping its buffer.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		m.logger.Warn("Monitor is already running")
		return nil
	}

	m.state = StateRunning
	m.lastErr = nil
	m.consecutiveFailures = 0
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.samplingLoop(m.stopCh, m.doneCh)

	m.logger.Info("Monitor started", "source", m.source.Name(), "interval", m.interval)
	return nil
}

// Stop terminates the sampling loop, waits (bounded) for it to exit and
// returns a copy of the buffer. Stopping a monitor that is not running
// returns the buffer unchanged. A loop that fails to acknowledge the stop
// within the stop timeout is an internal fault and is returned as an
// error alongside whatever was collected.
func (m *Monitor) Stop() ([]Reading, error) {
	m.mu.Lock()
	if m.state != StateRunning {
		buf := cloneReadings(m.buffer)
		m.mu.Unlock()
		return buf, nil
	}
	m.state = StateStopped
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	select {
	case <-done:
	case <-m.clock.After(m.stopTimeout):
		err := fmt.Errorf("sampling loop of monitor %q did not stop within %s", m.name, m.stopTimeout)
		m.logger.Error("Sampling loop failed to stop", "timeout", m.stopTimeout)
		m.recordError(err)
		return m.Readings(), err
	}

	readings := m.Readings()
	m.logger.Info("Monitor stopped", "readings", len(readings))
	return readings, nil
}

// Clear empties the buffer. Safe in any state; it takes the same lock as
// the loop's append so it never races a concurrent write.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = nil
}

// Readings returns a copy of the accumulated readings.
func (m *Monitor) Readings() []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneReadings(m.buffer)
}

// LastReading returns the newest reading, if any.
func (m *Monitor) LastReading() (Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buffer) == 0 {
		return Reading{}, false
	}
	return m.buffer[len(m.buffer)-1].Clone(), true
}

// Statistics computes summary statistics over the current buffer snapshot.
// An empty buffer yields zero statistics with Samples == 0 so callers can
// tell "no data" from "zero power".
func (m *Monitor) Statistics() Statistics {
	return ComputeStatistics(m.Readings())
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateRunning
}

// LastError reports why the monitor degraded, if it did.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// samplingLoop is the monitor's single writer. Each tick reads the source,
// appends on success and sleeps for interval minus the time the read took,
// so slow sources do not make the cadence drift. The stop signal is
// observed at least once per tick because the inter-tick sleep selects on
// it; a read whose latency exceeds the interval clamps the sleep to zero
// and the cadence degrades gracefully.
func (m *Monitor) samplingLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		tickStart := m.clock.Now()

		sample, err := m.source.Read()
		if !m.handleSample(sample, err) {
			return
		}

		elapsed := m.clock.Now().Sub(tickStart)
		sleep := m.interval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-stopCh:
			return
		case <-m.clock.After(sleep):
		}
	}
}

// handleSample applies the failure policy to one read outcome. It returns
// false when the loop must terminate.
func (m *Monitor) handleSample(sample device.Sample, err error) bool {
	switch {
	case err == nil:
		power := sample.Power
		if math.IsNaN(float64(power)) || power < 0 {
			return m.transientFailure(fmt.Errorf("source %s produced invalid power %v", m.source.Name(), power))
		}
		m.append(Reading{
			Timestamp: m.clock.Now(),
			Power:     power,
			Metadata:  sample.Metadata,
		})
		return true

	case device.IsUnavailable(err):
		// No data yet (e.g. the first read of an energy counter); skip
		// the tick without consuming failure budget.
		m.logger.Debug("No data for this tick", "error", err)
		return true

	case device.IsTransient(err):
		return m.transientFailure(err)

	default:
		// Permanent and unclassified failures stop this monitor only.
		m.selfStop(err)
		return false
	}
}

func (m *Monitor) append(r Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The buffer only grows while running; a Stop that won the race
	// discards this tick's reading.
	if m.state != StateRunning {
		return
	}
	m.consecutiveFailures = 0
	m.buffer = append(m.buffer, r)
}

// transientFailure records a retryable failure and decides whether the
// consecutive failure budget is exhausted. Returns false when the monitor
// stopped itself.
func (m *Monitor) transientFailure(err error) bool {
	m.mu.Lock()
	m.lastErr = err
	m.consecutiveFailures++
	failures := m.consecutiveFailures
	m.mu.Unlock()

	if failures <= m.failureThreshold {
		m.logger.Warn("Transient read failure, skipping tick",
			"failures", failures, "threshold", m.failureThreshold, "error", err)
		return true
	}

	m.selfStop(fmt.Errorf("%d consecutive transient failures exceeded threshold %d: %w",
		failures, m.failureThreshold, err))
	return false
}

// selfStop transitions the monitor to Stopped from within the loop.
func (m *Monitor) selfStop(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.state = StateStopped
	m.mu.Unlock()

	m.logger.Error("Monitor stopped due to read failure", "error", err)
}

func (m *Monitor) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}
