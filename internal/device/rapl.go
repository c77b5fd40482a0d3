// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
	"strings"

	"github.com/prometheus/procfs/sysfs"
	"k8s.io/utils/clock"
)

// raplCounter adapts a powercap sysfs RAPL zone to the EnergyCounter
// interface. Counter values are MicroJoules; the wrap point comes from the
// zone's max_energy_range_uj and differs across hardware generations.
type raplCounter struct {
	zone sysfs.RaplZone
}

var _ EnergyCounter = raplCounter{}

func (r raplCounter) Name() string {
	return r.zone.Name
}

func (r raplCounter) Energy() (Energy, error) {
	uj, err := r.zone.GetEnergyMicrojoules()
	if err != nil {
		return 0, Transient("reading %s: %v", r.zone.Path, err)
	}
	return Energy(uj), nil
}

func (r raplCounter) MaxEnergy() Energy {
	return Energy(r.zone.MaxMicrojoules)
}

type raplOpts struct {
	logger     *slog.Logger
	clock      clock.PassiveClock
	zoneFilter []string
	procPath   string
}

// RaplOptionFn configures NewRaplSource.
type RaplOptionFn func(*raplOpts)

// WithRaplLogger sets the logger for zone discovery.
func WithRaplLogger(logger *slog.Logger) RaplOptionFn {
	return func(o *raplOpts) {
		o.logger = logger.With("service", "rapl")
	}
}

// WithRaplClock sets the clock used for power derivation.
func WithRaplClock(c clock.PassiveClock) RaplOptionFn {
	return func(o *raplOpts) {
		o.clock = c
	}
}

// WithRaplZoneFilter restricts sampling to the named zones (matched case
// insensitively). An empty filter keeps every discovered zone.
func WithRaplZoneFilter(zones []string) RaplOptionFn {
	return func(o *raplOpts) {
		o.zoneFilter = zones
	}
}

// WithRaplProcPath sets the procfs path used to look up the CPU model for
// sample metadata. Empty disables the lookup.
func WithRaplProcPath(procPath string) RaplOptionFn {
	return func(o *raplOpts) {
		o.procPath = procPath
	}
}

// NewRaplSource discovers the powercap RAPL zones below sysfsPath and
// returns a PowerSource that derives CPU package power from them. Zones of
// a multi-socket system are aggregated into one counter with per-zone wrap
// handling. Returns a permanent error if no usable zone exists.
func NewRaplSource(sysfsPath string, opts ...RaplOptionFn) (*CounterSource, error) {
	o := raplOpts{
		logger: slog.Default().With("service", "rapl"),
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, Permanent("sysfs at %s: %v", sysfsPath, err)
	}

	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return nil, Permanent("discovering RAPL zones: %v", err)
	}

	counters := make([]EnergyCounter, 0, len(zones))
	var names []string
	for _, zone := range zones {
		if !zoneWanted(zone.Name, o.zoneFilter) {
			o.logger.Debug("Skipping filtered RAPL zone", "zone", zone.Name, "path", zone.Path)
			continue
		}
		counters = append(counters, raplCounter{zone})
		names = append(names, zone.Name)
	}
	if len(counters) == 0 {
		return nil, Permanent("no RAPL zones matched filter %v", o.zoneFilter)
	}

	o.logger.Info("Discovered RAPL zones", "zones", names)

	counter := counters[0]
	if len(counters) > 1 {
		counter = NewAggregatedCounter(counters)
	}

	metadata := map[string]string{
		"source": "rapl",
		"zones":  strings.Join(names, ","),
	}
	if o.procPath != "" {
		if model := cpuModelName(o.procPath); model != "" {
			metadata["cpu_model"] = model
		}
	}

	return NewCounterSource(counter,
		WithCounterClock(o.clock),
		WithCounterMetadata(metadata),
	), nil
}

func zoneWanted(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}
