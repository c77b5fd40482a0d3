// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"math"

	"k8s.io/utils/clock"
)

// EnergyCounter is a monotonically increasing hardware energy counter that
// wraps around at MaxEnergy, such as a RAPL energy_uj file.
type EnergyCounter interface {
	// Name identifies the counter, e.g. the RAPL zone name.
	Name() string

	// Energy returns the current cumulative energy count.
	Energy() (Energy, error)

	// MaxEnergy returns the counter value at which the hardware wraps
	// back to zero. A zero MaxEnergy means the wrap point is unknown.
	MaxEnergy() Energy
}

// CounterSource derives instantaneous power from an EnergyCounter by
// differencing consecutive counter reads over elapsed wall-clock time.
// A rate needs two points, so the first Read reports ErrUnavailable.
//
// The counter is assumed to wrap at most once between two reads; a double
// wrap within one sampling interval is undetectable and yields an
// underestimated delta.
type CounterSource struct {
	counter  EnergyCounter
	clock    clock.PassiveClock
	metadata map[string]string

	lastValue Energy
	lastTime  int64 // UnixNano of the previous read
	primed    bool
}

var _ PowerSource = (*CounterSource)(nil)

// CounterOptionFn configures a CounterSource.
type CounterOptionFn func(*CounterSource)

// WithCounterClock sets the clock used to timestamp counter reads.
func WithCounterClock(c clock.PassiveClock) CounterOptionFn {
	return func(s *CounterSource) {
		s.clock = c
	}
}

// WithCounterMetadata attaches static metadata to every sample.
func WithCounterMetadata(md map[string]string) CounterOptionFn {
	return func(s *CounterSource) {
		s.metadata = md
	}
}

// NewCounterSource returns a PowerSource that reports the power derived
// from consecutive reads of counter.
func NewCounterSource(counter EnergyCounter, opts ...CounterOptionFn) *CounterSource {
	s := &CounterSource{
		counter: counter,
		clock:   clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CounterSource) Name() string {
	return s.counter.Name()
}

func (s *CounterSource) Read() (Sample, error) {
	value, err := s.counter.Energy()
	if err != nil {
		if IsTransient(err) || IsPermanent(err) || IsUnavailable(err) {
			return Sample{}, err
		}
		return Sample{}, Transient("reading counter %s: %v", s.counter.Name(), err)
	}
	now := s.clock.Now().UnixNano()

	if !s.primed {
		s.lastValue, s.lastTime, s.primed = value, now, true
		return Sample{}, Unavailable("counter %s needs two reads to derive power", s.counter.Name())
	}

	deltaT := now - s.lastTime
	if deltaT <= 0 {
		// Clock anomaly; re-prime and let the next tick retry.
		s.lastValue, s.lastTime = value, now
		return Sample{}, Transient("counter %s: non-positive elapsed time %dns", s.counter.Name(), deltaT)
	}

	delta, ok := counterDelta(s.lastValue, value, s.counter.MaxEnergy())
	s.lastValue, s.lastTime = value, now
	if !ok {
		return Sample{}, Transient("counter %s went backwards without a known wrap point", s.counter.Name())
	}

	// MicroJoules per second are MicroWatts.
	power := Power(float64(delta) / (float64(deltaT) / 1e9))
	return Sample{Power: power, Metadata: s.metadata}, nil
}

// counterDelta computes the energy consumed between two counter reads,
// assuming at most one wrap at maxEnergy. All arithmetic stays in uint64.
func counterDelta(prev, curr, maxEnergy Energy) (Energy, bool) {
	if curr >= prev {
		return curr - prev, true
	}
	if maxEnergy == 0 {
		return 0, false
	}
	return (maxEnergy - prev) + curr, true
}

// AggregatedCounter presents several counters of the same kind (e.g. the
// package zones of a multi-socket system) as one EnergyCounter. It handles
// the wrap of each member counter individually and accumulates their
// deltas into a single monotonic count.
type AggregatedCounter struct {
	name     string
	counters []EnergyCounter

	// lastReadings is keyed by the member's position in counters; zone
	// names are not unique across sockets ("dram" appears per package).
	lastReadings map[int]Energy
	total        Energy
	maxEnergy    Energy
}

var _ EnergyCounter = (*AggregatedCounter)(nil)

// NewAggregatedCounter combines counters into one. The aggregate takes its
// name from the first counter. Panics if counters is empty.
func NewAggregatedCounter(counters []EnergyCounter) *AggregatedCounter {
	if len(counters) == 0 {
		panic("NewAggregatedCounter: counters cannot be empty")
	}

	var totalMax Energy
	for _, c := range counters {
		max := c.MaxEnergy()
		if totalMax > 0 && max > math.MaxUint64-totalMax {
			totalMax = Energy(math.MaxUint64)
			break
		}
		totalMax += max
	}

	return &AggregatedCounter{
		name:         counters[0].Name(),
		counters:     counters,
		lastReadings: make(map[int]Energy, len(counters)),
		maxEnergy:    totalMax,
	}
}

func (a *AggregatedCounter) Name() string {
	return a.name
}

func (a *AggregatedCounter) MaxEnergy() Energy {
	return a.maxEnergy
}

func (a *AggregatedCounter) Energy() (Energy, error) {
	for i, c := range a.counters {
		curr, err := c.Energy()
		if err != nil {
			return 0, Transient("aggregated counter member %s: %v", c.Name(), err)
		}

		if prev, seen := a.lastReadings[i]; seen {
			delta, ok := counterDelta(prev, curr, c.MaxEnergy())
			if !ok {
				// Unknown wrap point and the counter moved backwards;
				// skip this member's contribution for one read.
				delta = 0
			}
			a.total += delta
		} else {
			a.total += curr
		}
		a.lastReadings[i] = curr
	}

	return a.total, nil
}
