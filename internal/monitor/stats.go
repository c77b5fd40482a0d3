// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"github.com/powerprof/powerprof/internal/device"
)

// Statistics summarizes a sequence of readings. Samples == 0 signals an
// empty input; every other field is zero in that case.
type Statistics struct {
	Samples     int
	Average     device.Power
	Peak        device.Power
	Min         device.Power
	TotalEnergy device.Energy
}

// ComputeStatistics computes average, peak, min and total energy of the
// given readings.
//
// TotalEnergy is a left Riemann sum: each reading contributes its power
// multiplied by the wall-clock gap to its successor; the last reading has
// no trailing interval and contributes nothing. Time-ordered input is a
// precondition for the energy integral to be meaningful; non-positive gaps
// are skipped rather than subtracted. Average, peak and min are order
// independent.
func ComputeStatistics(readings []Reading) Statistics {
	if len(readings) == 0 {
		return Statistics{}
	}

	var sum float64
	peak := readings[0].Power
	min := readings[0].Power
	for _, r := range readings {
		sum += float64(r.Power)
		if r.Power > peak {
			peak = r.Power
		}
		if r.Power < min {
			min = r.Power
		}
	}

	var microJoules float64
	for i := 0; i+1 < len(readings); i++ {
		dt := readings[i+1].Timestamp.Sub(readings[i].Timestamp)
		if dt <= 0 {
			continue
		}
		microJoules += readings[i].Power.MicroWatts() * dt.Seconds()
	}

	return Statistics{
		Samples:     len(readings),
		Average:     device.Power(sum / float64(len(readings))),
		Peak:        peak,
		Min:         min,
		TotalEnergy: device.Energy(microJoules),
	}
}
