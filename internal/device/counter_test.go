// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// fakeCounter replays a fixed sequence of counter values.
type fakeCounter struct {
	name      string
	maxEnergy Energy
	values    []Energy
	errs      []error
	pos       int
}

func (f *fakeCounter) Name() string {
	return f.name
}

func (f *fakeCounter) MaxEnergy() Energy {
	return f.maxEnergy
}

func (f *fakeCounter) Energy() (Energy, error) {
	if f.pos >= len(f.values) {
		return 0, fmt.Errorf("fake counter exhausted after %d reads", f.pos)
	}
	i := f.pos
	f.pos++
	if i < len(f.errs) && f.errs[i] != nil {
		return 0, f.errs[i]
	}
	return f.values[i], nil
}

func TestCounterSourceFirstReadIsUnavailable(t *testing.T) {
	counter := &fakeCounter{name: "package-0", values: []Energy{1000 * Joule}}
	src := NewCounterSource(counter)

	_, err := src.Read()
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestCounterSourceDerivesPower(t *testing.T) {
	counter := &fakeCounter{
		name:   "package-0",
		values: []Energy{1000 * Joule, 1010 * Joule, 1015 * Joule},
	}
	fc := testingclock.NewFakeClock(time.Now())
	src := NewCounterSource(counter, WithCounterClock(fc))

	_, err := src.Read()
	require.True(t, IsUnavailable(err))

	fc.Step(2 * time.Second)
	sample, err := src.Read()
	require.NoError(t, err)
	// 10 J over 2 s
	assert.InDelta(t, 5.0, sample.Power.Watts(), 1e-9)

	fc.Step(1 * time.Second)
	sample, err = src.Read()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, sample.Power.Watts(), 1e-9)
}

func TestCounterSourceWraparound(t *testing.T) {
	counter := &fakeCounter{
		name:      "package-0",
		maxEnergy: 1600,
		values:    []Energy{1000, 1500, 200},
	}
	fc := testingclock.NewFakeClock(time.Now())
	src := NewCounterSource(counter, WithCounterClock(fc))

	_, err := src.Read()
	require.True(t, IsUnavailable(err))

	fc.Step(time.Second)
	sample, err := src.Read()
	require.NoError(t, err)
	assert.InDelta(t, 500.0, sample.Power.MicroWatts(), 1e-9)

	// 1500 -> 200 across the wrap at 1600: (1600-1500)+200 = 300
	fc.Step(time.Second)
	sample, err = src.Read()
	require.NoError(t, err)
	assert.InDelta(t, 300.0, sample.Power.MicroWatts(), 1e-9)
}

func TestCounterSourceBackwardsWithoutWrapPoint(t *testing.T) {
	counter := &fakeCounter{
		name:   "package-0",
		values: []Energy{1000, 200, 300},
	}
	fc := testingclock.NewFakeClock(time.Now())
	src := NewCounterSource(counter, WithCounterClock(fc))

	_, err := src.Read()
	require.True(t, IsUnavailable(err))

	fc.Step(time.Second)
	_, err = src.Read()
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	// the failed read still re-primed; the next delta is 300-200
	fc.Step(time.Second)
	sample, err := src.Read()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, sample.Power.MicroWatts(), 1e-9)
}

func TestCounterSourceNonPositiveElapsed(t *testing.T) {
	counter := &fakeCounter{
		name:   "package-0",
		values: []Energy{1000, 1100, 1200},
	}
	fc := testingclock.NewFakeClock(time.Now())
	src := NewCounterSource(counter, WithCounterClock(fc))

	_, err := src.Read()
	require.True(t, IsUnavailable(err))

	// clock did not advance
	_, err = src.Read()
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	fc.Step(time.Second)
	sample, err := src.Read()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, sample.Power.MicroWatts(), 1e-9)
}

func TestCounterSourceCounterErrorClassification(t *testing.T) {
	counter := &fakeCounter{
		name:   "package-0",
		values: []Energy{0},
		errs:   []error{fmt.Errorf("read /sys: EAGAIN")},
	}
	src := NewCounterSource(counter)

	_, err := src.Read()
	require.Error(t, err)
	// unclassified counter errors are retried
	assert.True(t, IsTransient(err))
}

func TestCounterSourcePermanentErrorPassesThrough(t *testing.T) {
	counter := &fakeCounter{
		name:   "package-0",
		values: []Energy{0},
		errs:   []error{Permanent("counter interface gone")},
	}
	src := NewCounterSource(counter)

	_, err := src.Read()
	assert.True(t, IsPermanent(err))
}

func TestCounterSourceMetadata(t *testing.T) {
	counter := &fakeCounter{name: "package-0", values: []Energy{0, 100}}
	fc := testingclock.NewFakeClock(time.Now())
	src := NewCounterSource(counter,
		WithCounterClock(fc),
		WithCounterMetadata(map[string]string{"source": "rapl"}),
	)

	_, err := src.Read()
	require.True(t, IsUnavailable(err))

	fc.Step(time.Second)
	sample, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, "rapl", sample.Metadata["source"])
	assert.Equal(t, "package-0", src.Name())
}

func TestCounterDelta(t *testing.T) {
	tt := []struct {
		name       string
		prev, curr Energy
		max        Energy
		want       Energy
		ok         bool
	}{
		{"no movement", 100, 100, 1600, 0, true},
		{"forward", 100, 150, 1600, 50, true},
		{"wrap", 1500, 200, 1600, 300, true},
		{"wrap at zero", 1600, 0, 1600, 0, true},
		{"backwards unknown max", 1500, 200, 0, 0, false},
		{"forward unknown max", 100, 150, 0, 50, true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := counterDelta(tc.prev, tc.curr, tc.max)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAggregatedCounterSumsMembers(t *testing.T) {
	a := &fakeCounter{name: "package-0", maxEnergy: 1000, values: []Energy{100, 200, 300}}
	b := &fakeCounter{name: "package-1", maxEnergy: 1000, values: []Energy{50, 60, 70}}
	agg := NewAggregatedCounter([]EnergyCounter{a, b})

	assert.Equal(t, "package-0", agg.Name())
	assert.Equal(t, Energy(2000), agg.MaxEnergy())

	total, err := agg.Energy()
	require.NoError(t, err)
	assert.Equal(t, Energy(150), total)

	total, err = agg.Energy()
	require.NoError(t, err)
	assert.Equal(t, Energy(260), total)

	total, err = agg.Energy()
	require.NoError(t, err)
	assert.Equal(t, Energy(370), total)
}

func TestAggregatedCounterHandlesMemberWrap(t *testing.T) {
	a := &fakeCounter{name: "package-0", maxEnergy: 1000, values: []Energy{900, 100}}
	b := &fakeCounter{name: "package-1", maxEnergy: 1000, values: []Energy{100, 150}}
	agg := NewAggregatedCounter([]EnergyCounter{a, b})

	total, err := agg.Energy()
	require.NoError(t, err)
	assert.Equal(t, Energy(1000), total)

	// member a wrapped: (1000-900)+100 = 200; member b advanced by 50
	total, err = agg.Energy()
	require.NoError(t, err)
	assert.Equal(t, Energy(1250), total)
}

func TestAggregatedCounterMemberError(t *testing.T) {
	a := &fakeCounter{name: "package-0", values: []Energy{0}, errs: []error{fmt.Errorf("boom")}}
	agg := NewAggregatedCounter([]EnergyCounter{a})

	_, err := agg.Energy()
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestAggregatedCounterPanicsOnEmptyInput(t *testing.T) {
	assert.Panics(t, func() {
		NewAggregatedCounter(nil)
	})
}
