// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package csv writes collected readings and per-monitor summaries as CSV
// files, one readings file per monitor plus a shared summary.
package csv

import (
	enccsv "encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/powerprof/powerprof/internal/monitor"
)

// readingRecord is one sampled row in a readings file.
type readingRecord struct {
	Timestamp string  `csv:"timestamp"`
	Watts     float64 `csv:"watts"`
}

// summaryRecord is one monitor's row in the summary file.
type summaryRecord struct {
	Monitor      string  `csv:"monitor"`
	Source       string  `csv:"source"`
	Samples      int     `csv:"samples"`
	AverageWatts float64 `csv:"average_watts"`
	PeakWatts    float64 `csv:"peak_watts"`
	MinWatts     float64 `csv:"min_watts"`
	TotalJoules  float64 `csv:"total_joules"`
}

// Exporter writes CSV files for every monitor of a collector into a
// single output directory.
type Exporter struct {
	logger *slog.Logger
	outDir string
}

// OptionFn configures an Exporter.
type OptionFn func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(e *Exporter) {
		e.logger = logger.With("service", "csv-export")
	}
}

// NewExporter creates an Exporter that writes into outDir. The directory
// is created on Export, not here.
func NewExporter(outDir string, opts ...OptionFn) (*Exporter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	e := &Exporter{
		logger: slog.Default().With("service", "csv-export"),
		outDir: outDir,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Export writes one <monitor>_readings.csv per monitor and a summary.csv
// covering all of them.
func (e *Exporter) Export(c *monitor.Collector) error {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", e.outDir, err)
	}

	monitors := c.Monitors()
	for _, m := range monitors {
		path := filepath.Join(e.outDir, m.Name()+"_readings.csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		err = WriteReadings(f, m.Readings())
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		e.logger.Info("Wrote readings", "path", path, "monitor", m.Name())
	}

	path := filepath.Join(e.outDir, "summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	err = WriteSummary(f, monitors)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	e.logger.Info("Wrote summary", "path", path, "monitors", len(monitors))
	return nil
}

// WriteReadings encodes readings as CSV rows, oldest first.
func WriteReadings(out io.Writer, readings []monitor.Reading) error {
	w := enccsv.NewWriter(out)
	enc := csvutil.NewEncoder(w)
	for _, r := range readings {
		rec := readingRecord{
			Timestamp: r.Timestamp.Format(time.RFC3339Nano),
			Watts:     r.Power.Watts(),
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteSummary encodes one statistics row per monitor.
func WriteSummary(out io.Writer, monitors []*monitor.Monitor) error {
	w := enccsv.NewWriter(out)
	enc := csvutil.NewEncoder(w)
	for _, m := range monitors {
		stats := m.Statistics()
		rec := summaryRecord{
			Monitor:      m.Name(),
			Source:       m.Source().Name(),
			Samples:      stats.Samples,
			AverageWatts: stats.Average.Watts(),
			PeakWatts:    stats.Peak.Watts(),
			MinWatts:     stats.Min.Watts(),
			TotalJoules:  stats.TotalEnergy.Joules(),
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
