// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnergyConversions(t *testing.T) {
	e := 2500 * MilliJoule
	assert.Equal(t, uint64(2_500_000), e.MicroJoules())
	assert.InDelta(t, 2500.0, e.MilliJoules(), 1e-9)
	assert.InDelta(t, 2.5, e.Joules(), 1e-9)
	assert.Equal(t, "2.50J", e.String())
}

func TestPowerConversions(t *testing.T) {
	p := 12500 * MilliWatt
	assert.InDelta(t, 12_500_000, p.MicroWatts(), 1e-9)
	assert.InDelta(t, 12500.0, p.MilliWatts(), 1e-9)
	assert.InDelta(t, 12.5, p.Watts(), 1e-9)
	assert.Equal(t, "12.50W", p.String())
}
