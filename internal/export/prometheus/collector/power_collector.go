// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the Prometheus collectors that expose
// monitor readings and build information.
package collector

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/powerprof/powerprof/internal/monitor"
	"github.com/powerprof/powerprof/internal/version"
)

// PowerCollector exposes the live state of every monitor in a collector.
// Metrics are computed at scrape time from the monitor buffers.
type PowerCollector struct {
	logger    *slog.Logger
	collector *monitor.Collector

	wattsDesc   *prometheus.Desc
	joulesDesc  *prometheus.Desc
	samplesDesc *prometheus.Desc
	upDesc      *prometheus.Desc
}

var _ prometheus.Collector = (*PowerCollector)(nil)

func NewPowerCollector(c *monitor.Collector, logger *slog.Logger) *PowerCollector {
	labels := []string{"monitor", "source"}
	return &PowerCollector{
		logger:    logger.With("collector", "power"),
		collector: c,
		wattsDesc: prometheus.NewDesc(
			"powerprof_power_watts",
			"Most recently sampled power draw in watts",
			labels, nil),
		joulesDesc: prometheus.NewDesc(
			"powerprof_energy_joules_total",
			"Energy integrated over the buffered readings in joules",
			labels, nil),
		samplesDesc: prometheus.NewDesc(
			"powerprof_samples",
			"Number of readings currently buffered",
			labels, nil),
		upDesc: prometheus.NewDesc(
			"powerprof_monitor_up",
			"1 when the monitor's sampling loop is running",
			labels, nil),
	}
}

func (p *PowerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.wattsDesc
	ch <- p.joulesDesc
	ch <- p.samplesDesc
	ch <- p.upDesc
}

func (p *PowerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range p.collector.Monitors() {
		name := m.Name()
		source := m.Source().Name()

		if last, ok := m.LastReading(); ok {
			ch <- prometheus.MustNewConstMetric(
				p.wattsDesc, prometheus.GaugeValue, last.Power.Watts(), name, source)
		}

		stats := m.Statistics()
		ch <- prometheus.MustNewConstMetric(
			p.joulesDesc, prometheus.CounterValue, stats.TotalEnergy.Joules(), name, source)
		ch <- prometheus.MustNewConstMetric(
			p.samplesDesc, prometheus.GaugeValue, float64(stats.Samples), name, source)

		up := 0.0
		if m.IsRunning() {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(
			p.upDesc, prometheus.GaugeValue, up, name, source)
	}
}

// BuildInfoCollector exposes the binary's version as a constant metric.
type BuildInfoCollector struct {
	desc *prometheus.Desc
}

var _ prometheus.Collector = (*BuildInfoCollector)(nil)

func NewBuildInfoCollector() *BuildInfoCollector {
	return &BuildInfoCollector{
		desc: prometheus.NewDesc(
			"powerprof_build_info",
			"Build information",
			[]string{"version", "revision"}, nil),
	}
}

func (b *BuildInfoCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.desc
}

func (b *BuildInfoCollector) Collect(ch chan<- prometheus.Metric) {
	info := version.Info()
	ch <- prometheus.MustNewConstMetric(
		b.desc, prometheus.GaugeValue, 1, info.Version, info.GitCommit)
}
