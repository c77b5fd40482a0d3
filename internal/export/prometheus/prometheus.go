// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package prometheus wires the power collectors into a registry and
// mounts the scrape handler on the API server.
package prometheus

import (
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/powerprof/powerprof/internal/export/prometheus/collector"
	"github.com/powerprof/powerprof/internal/monitor"
	"github.com/powerprof/powerprof/internal/service"
)

// APIRegistry mounts handlers on the API server.
type APIRegistry interface {
	Register(endpoint, summary, description string, handler http.Handler) error
}

type Opts struct {
	logger          *slog.Logger
	debugCollectors map[string]bool
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		debugCollectors: map[string]bool{
			"go": true,
		},
	}
}

// OptionFn is a function that sets one or more options in Opts
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithDebugCollectors replaces the default set of runtime collectors.
func WithDebugCollectors(names []string) OptionFn {
	return func(o *Opts) {
		o.debugCollectors = make(map[string]bool)
		for _, name := range names {
			o.debugCollectors[name] = true
		}
	}
}

// Exporter exposes monitor readings for Prometheus scrapes.
type Exporter struct {
	logger          *slog.Logger
	collector       *monitor.Collector
	server          APIRegistry
	registry        *prom.Registry
	debugCollectors map[string]bool
}

var _ service.Initializer = (*Exporter)(nil)

func NewExporter(c *monitor.Collector, s APIRegistry, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:          opts.logger.With("service", "prometheus"),
		collector:       c,
		server:          s,
		registry:        prom.NewRegistry(),
		debugCollectors: opts.debugCollectors,
	}
}

func collectorForName(name string) (prom.Collector, error) {
	switch name {
	case "go":
		return collectors.NewGoCollector(), nil
	case "process":
		return collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), nil
	default:
		return nil, fmt.Errorf("unknown collector: %s", name)
	}
}

func (e *Exporter) Init() error {
	e.logger.Info("Initializing Prometheus exporter")
	for name := range e.debugCollectors {
		c, err := collectorForName(name)
		if err != nil {
			return err
		}
		e.logger.Info("Enabling debug collector", "collector", name)
		e.registry.MustRegister(c)
	}

	e.registry.MustRegister(collector.NewBuildInfoCollector())
	e.registry.MustRegister(collector.NewPowerCollector(e.collector, e.logger))

	return e.server.Register("/metrics", "Metrics", "Prometheus metrics",
		promhttp.HandlerFor(
			e.registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          e.registry,
			},
		))
}

// Name implements service.Service
func (e *Exporter) Name() string {
	return "prometheus"
}
