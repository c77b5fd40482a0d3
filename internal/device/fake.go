// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"math/rand"
	"strconv"
)

// NOTE: the fake source exists for development and tests only.

// FakeSource produces a bounded random walk around a base power level so
// that exporters and monitors have plausible data without hardware.
type FakeSource struct {
	name   string
	base   Power
	jitter float64
	power  Power
}

var _ PowerSource = (*FakeSource)(nil)

// FakeOptFn configures a FakeSource.
type FakeOptFn func(*FakeSource)

// WithFakeBasePower sets the level the walk hovers around.
func WithFakeBasePower(p Power) FakeOptFn {
	return func(s *FakeSource) {
		s.base = p
		s.power = p
	}
}

// WithFakeJitter sets the walk's relative step size (0..1).
func WithFakeJitter(j float64) FakeOptFn {
	return func(s *FakeSource) {
		s.jitter = j
	}
}

// NewFakeSource returns a source that always succeeds.
func NewFakeSource(name string, opts ...FakeOptFn) *FakeSource {
	s := &FakeSource{
		name:   name,
		base:   85 * Watt,
		jitter: 0.1,
	}
	s.power = s.base
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FakeSource) Name() string {
	return s.name
}

func (s *FakeSource) Read() (Sample, error) {
	step := Power((rand.Float64() - 0.5) * 2 * s.jitter * float64(s.base))
	s.power += step
	// keep the walk within [base/2, base*2]
	if s.power < s.base/2 {
		s.power = s.base / 2
	}
	if s.power > s.base*2 {
		s.power = s.base * 2
	}

	return Sample{
		Power: s.power,
		Metadata: map[string]string{
			"source":     "fake",
			"base_watts": strconv.FormatFloat(s.base.Watts(), 'f', 2, 64),
		},
	}, nil
}
