// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package stdout renders power readings as tables on standard output,
// either once after a collection run or periodically as a service.
package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/powerprof/powerprof/internal/monitor"
	"github.com/powerprof/powerprof/internal/service"
)

// Exporter periodically prints the live state of every monitor.
type Exporter struct {
	logger    *slog.Logger
	collector *monitor.Collector
	out       io.Writer
	interval  time.Duration
	ticker    *time.Ticker
}

var (
	_ service.Initializer = (*Exporter)(nil)
	_ service.Runner      = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.Writer
	interval time.Duration
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default().With("service", "stdout"),
		out:      os.Stdout,
		interval: 2 * time.Second,
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

func WithOutput(out io.Writer) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

func NewExporter(c *monitor.Collector, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:    opts.logger.With("service", "stdout"),
		collector: c,
		out:       opts.out,
		interval:  opts.interval,
	}
}

func (e *Exporter) Name() string {
	return "stdout"
}

func (e *Exporter) Init() error {
	if e.interval <= 0 {
		return fmt.Errorf("stdout export interval must be positive, got %s", e.interval)
	}
	e.ticker = time.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	defer e.ticker.Stop()
	for {
		select {
		case <-e.ticker.C:
			writeLive(e.out, e.collector.Monitors())
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

// writeLive prints the most recent reading of every monitor.
func writeLive(out io.Writer, monitors []*monitor.Monitor) {
	rows := [][]string{}
	for _, m := range monitors {
		watts := "-"
		age := "-"
		if last, ok := m.LastReading(); ok {
			watts = last.Power.String()
			age = time.Since(last.Timestamp).Truncate(time.Millisecond).String()
		}
		state := "stopped"
		if m.IsRunning() {
			state = "running"
		}
		rows = append(rows, []string{m.Name(), m.Source().Name(), state, watts, age})
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Monitor", "Source", "State", "Power", "Age"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

// WriteSummary prints one statistics row per monitor. Used after a
// bounded collection run.
func WriteSummary(out io.Writer, monitors []*monitor.Monitor) {
	rows := [][]string{}
	for _, m := range monitors {
		stats := m.Statistics()
		rows = append(rows, []string{
			m.Name(),
			m.Source().Name(),
			fmt.Sprintf("%d", stats.Samples),
			stats.Average.String(),
			stats.Peak.String(),
			stats.Min.String(),
			stats.TotalEnergy.String(),
		})
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Monitor", "Source", "Samples", "Avg", "Peak", "Min", "Energy"})
	_ = table.Bulk(rows)
	_ = table.Render()
}
