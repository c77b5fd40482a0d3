// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/sys", cfg.Host.SysFS)
	assert.Equal(t, "/proc", cfg.Host.ProcFS)
	assert.Equal(t, 1*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5, cfg.Monitor.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Monitor.StopTimeout)
	assert.True(t, ptr.Deref(cfg.Sources.Rapl.Enabled, false))
	assert.False(t, ptr.Deref(cfg.Sources.Redfish.Enabled, true))
	assert.True(t, ptr.Deref(cfg.Exporter.Prometheus.Enabled, false))
	assert.Equal(t, []string{":28283"}, cfg.Web.ListenAddresses)

	require.NoError(t, cfg.Validate(SkipHostValidation))
}

func TestLoadYAML(t *testing.T) {
	yaml := `
log:
  level: debug
  format: json
monitor:
  interval: 250ms
  failureThreshold: 3
sources:
  rapl:
    enabled: false
    zones: [ package-0, dram ]
  redfish:
    enabled: true
    endpoint: https://bmc.example.com
    username: admin
    password: hunter2
    insecure: true
exporter:
  csv:
    enabled: true
    outDir: /tmp/power-out
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 3, cfg.Monitor.FailureThreshold)
	assert.False(t, ptr.Deref(cfg.Sources.Rapl.Enabled, true))
	assert.Equal(t, []string{"package-0", "dram"}, cfg.Sources.Rapl.Zones)
	assert.True(t, ptr.Deref(cfg.Sources.Redfish.Enabled, false))
	assert.Equal(t, "https://bmc.example.com", cfg.Sources.Redfish.Endpoint)
	assert.True(t, cfg.Sources.Redfish.Insecure)
	// unset fields keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Monitor.StopTimeout)
	assert.Equal(t, 10*time.Second, cfg.Sources.Redfish.HTTPTimeout)
	assert.True(t, ptr.Deref(cfg.Exporter.CSV.Enabled, false))
	assert.Equal(t, "/tmp/power-out", cfg.Exporter.CSV.OutDir)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(strings.NewReader("log: ["))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  rapl:\n    enabled: false\n"), 0o644))

	cfg, err := FromFile(path)
	require.NoError(t, err)
	assert.False(t, ptr.Deref(cfg.Sources.Rapl.Enabled, true))

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegisterFlagsOverridesConfig(t *testing.T) {
	app := kingpin.New("test", "")
	update := RegisterFlags(app)

	_, err := app.Parse([]string{
		"--log.level=debug",
		"--monitor.interval=100ms",
		"--monitor.failure-threshold=2",
		"--source.rapl=false",
		"--exporter.csv=true",
		"--exporter.csv.out-dir=/tmp/out",
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Log.Format = "json" // untouched by flags; must survive
	require.NoError(t, update(cfg))

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 100*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 2, cfg.Monitor.FailureThreshold)
	assert.False(t, ptr.Deref(cfg.Sources.Rapl.Enabled, true))
	assert.True(t, ptr.Deref(cfg.Exporter.CSV.Enabled, false))
	assert.Equal(t, "/tmp/out", cfg.Exporter.CSV.OutDir)
}

func TestValidateRejections(t *testing.T) {
	tt := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{{
		name:    "bad log level",
		mutate:  func(c *Config) { c.Log.Level = "verbose" },
		message: "invalid log level",
	}, {
		name:    "bad log format",
		mutate:  func(c *Config) { c.Log.Format = "xml" },
		message: "invalid log format",
	}, {
		name:    "zero interval",
		mutate:  func(c *Config) { c.Monitor.Interval = 0 },
		message: "invalid monitor interval",
	}, {
		name:    "zero failure threshold",
		mutate:  func(c *Config) { c.Monitor.FailureThreshold = 0 },
		message: "invalid monitor failure threshold",
	}, {
		name:    "no listen addresses",
		mutate:  func(c *Config) { c.Web.ListenAddresses = nil },
		message: "at least one web listen address",
	}, {
		name:    "bad listen address",
		mutate:  func(c *Config) { c.Web.ListenAddresses = []string{"not-an-address"} },
		message: "invalid web listen address",
	}, {
		name: "redfish enabled without endpoint",
		mutate: func(c *Config) {
			c.Sources.Redfish.Enabled = ptr.To(true)
		},
		message: "source.redfish.endpoint",
	}, {
		name: "csv enabled without out dir",
		mutate: func(c *Config) {
			c.Exporter.CSV.Enabled = ptr.To(true)
			c.Exporter.CSV.OutDir = ""
		},
		message: "exporter.csv.out-dir",
	}}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate(SkipHostValidation)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestStringRedactsPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources.Redfish.Password = "hunter2"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "***")
}
