// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package csv

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerprof/powerprof/internal/device"
	"github.com/powerprof/powerprof/internal/monitor"
)

type staticSource struct {
	name  string
	watts float64
}

func (s staticSource) Name() string {
	return s.name
}

func (s staticSource) Read() (device.Sample, error) {
	return device.Sample{Power: device.Power(s.watts) * device.Watt}, nil
}

func collectedMonitor(t *testing.T, name string, watts float64) *monitor.Monitor {
	t.Helper()
	m, err := monitor.New(name, staticSource{name: name, watts: watts},
		monitor.WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, m.Start())
	require.Eventually(t, func() bool {
		return len(m.Readings()) >= 3
	}, time.Second, time.Millisecond)
	_, err = m.Stop()
	require.NoError(t, err)
	return m
}

func TestWriteReadings(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []monitor.Reading{
		{Timestamp: t0, Power: 5 * device.Watt},
		{Timestamp: t0.Add(time.Second), Power: 7500 * device.MilliWatt},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReadings(&buf, readings))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,watts", lines[0])
	assert.Equal(t, "2025-06-01T12:00:00Z,5", lines[1])
	assert.Equal(t, "2025-06-01T12:00:01Z,7.5", lines[2])
}

func TestWriteReadingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReadings(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestWriteSummary(t *testing.T) {
	m := collectedMonitor(t, "cpu", 5)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, []*monitor.Monitor{m}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "monitor,source,samples,average_watts,peak_watts,min_watts,total_joules", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "cpu,cpu,"))
}

func TestExporterWritesFiles(t *testing.T) {
	c := monitor.NewCollector()
	require.NoError(t, c.Add(collectedMonitor(t, "cpu", 5)))
	require.NoError(t, c.Add(collectedMonitor(t, "gpu", 50)))

	outDir := filepath.Join(t.TempDir(), "out")
	exporter, err := NewExporter(outDir)
	require.NoError(t, err)
	require.NoError(t, exporter.Export(c))

	for _, name := range []string{"cpu_readings.csv", "gpu_readings.csv", "summary.csv"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	summary, err := os.ReadFile(filepath.Join(outDir, "summary.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "cpu")
	assert.Contains(t, string(summary), "gpu")
}

func TestNewExporterValidation(t *testing.T) {
	_, err := NewExporter("")
	assert.Error(t, err)
}
