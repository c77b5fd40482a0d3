// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"time"

	"github.com/powerprof/powerprof/internal/device"
)

// Reading is one timestamped power measurement. Readings are immutable
// once created; the monitor's buffer hands out clones, never the stored
// values, so callers can hold them across a running sampling loop.
type Reading struct {
	Timestamp time.Time
	Power     device.Power
	Metadata  map[string]string
}

// Clone returns a deep copy of the reading.
func (r Reading) Clone() Reading {
	ret := r
	if r.Metadata != nil {
		ret.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			ret.Metadata[k] = v
		}
	}
	return ret
}

func cloneReadings(readings []Reading) []Reading {
	ret := make([]Reading, len(readings))
	for i, r := range readings {
		ret[i] = r.Clone()
	}
	return ret
}

// State is the lifecycle state of a Monitor or Collector.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
