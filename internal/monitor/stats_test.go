// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/powerprof/powerprof/internal/device"
)

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(nil)
	assert.Equal(t, 0, stats.Samples)
	assert.Equal(t, device.Power(0), stats.Average)
	assert.Equal(t, device.Power(0), stats.Peak)
	assert.Equal(t, device.Power(0), stats.Min)
	assert.Equal(t, device.Energy(0), stats.TotalEnergy)
}

func TestComputeStatisticsSingleReading(t *testing.T) {
	stats := ComputeStatistics([]Reading{
		{Timestamp: time.Now(), Power: 5 * device.Watt},
	})
	assert.Equal(t, 1, stats.Samples)
	assert.Equal(t, 5*device.Watt, stats.Average)
	assert.Equal(t, 5*device.Watt, stats.Peak)
	assert.Equal(t, 5*device.Watt, stats.Min)
	// a single reading spans no interval
	assert.Equal(t, device.Energy(0), stats.TotalEnergy)
}

func TestComputeStatisticsEnergyIntegral(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []Reading{
		{Timestamp: t0, Power: 5 * device.Watt},
		{Timestamp: t0.Add(1 * time.Second), Power: 7 * device.Watt},
		{Timestamp: t0.Add(2 * time.Second), Power: 6 * device.Watt},
	}

	stats := ComputeStatistics(readings)
	assert.Equal(t, 3, stats.Samples)
	assert.InDelta(t, 6.0, stats.Average.Watts(), 1e-9)
	assert.Equal(t, 7*device.Watt, stats.Peak)
	assert.Equal(t, 5*device.Watt, stats.Min)
	// 5 W for 1 s plus 7 W for 1 s; the last reading contributes nothing
	assert.InDelta(t, 12.0, stats.TotalEnergy.Joules(), 1e-9)
}

func TestComputeStatisticsUnevenIntervals(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []Reading{
		{Timestamp: t0, Power: 10 * device.Watt},
		{Timestamp: t0.Add(500 * time.Millisecond), Power: 20 * device.Watt},
		{Timestamp: t0.Add(3 * time.Second), Power: 1 * device.Watt},
	}

	stats := ComputeStatistics(readings)
	// 10 W * 0.5 s + 20 W * 2.5 s
	assert.InDelta(t, 55.0, stats.TotalEnergy.Joules(), 1e-9)
}

func TestComputeStatisticsSkipsNonPositiveGaps(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []Reading{
		{Timestamp: t0, Power: 5 * device.Watt},
		{Timestamp: t0, Power: 7 * device.Watt},
		{Timestamp: t0.Add(1 * time.Second), Power: 6 * device.Watt},
	}

	stats := ComputeStatistics(readings)
	// the zero-length gap contributes nothing; 7 W for 1 s remains
	assert.InDelta(t, 7.0, stats.TotalEnergy.Joules(), 1e-9)
}

func TestComputeStatisticsOrderIndependentAggregates(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	forward := []Reading{
		{Timestamp: t0, Power: 3 * device.Watt},
		{Timestamp: t0.Add(time.Second), Power: 9 * device.Watt},
		{Timestamp: t0.Add(2 * time.Second), Power: 6 * device.Watt},
	}
	shuffled := []Reading{forward[1], forward[2], forward[0]}

	a := ComputeStatistics(forward)
	b := ComputeStatistics(shuffled)
	assert.Equal(t, a.Average, b.Average)
	assert.Equal(t, a.Peak, b.Peak)
	assert.Equal(t, a.Min, b.Min)
	assert.Equal(t, a.Samples, b.Samples)
}
