// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSourceStaysWithinBounds(t *testing.T) {
	src := NewFakeSource("fake-cpu",
		WithFakeBasePower(100*Watt),
		WithFakeJitter(0.5),
	)
	assert.Equal(t, "fake-cpu", src.Name())

	for i := 0; i < 1000; i++ {
		sample, err := src.Read()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sample.Power.Watts(), 50.0)
		assert.LessOrEqual(t, sample.Power.Watts(), 200.0)
		assert.Equal(t, "fake", sample.Metadata["source"])
	}
}

func TestFakeSourceDefaults(t *testing.T) {
	src := NewFakeSource("fake-cpu")
	sample, err := src.Read()
	require.NoError(t, err)
	assert.Greater(t, sample.Power.Watts(), 0.0)
}
