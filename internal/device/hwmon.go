// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CPU power instrumentation chips known to expose a meaningful package
// power via hwmon. Names as reported by the chip's sysfs "name" file.
var cpuHwmonChips = map[string]bool{
	"k10temp":     true, // AMD Zen family
	"zenpower":    true, // out-of-tree AMD driver
	"amd_energy":  true,
	"power_meter": true, // ACPI power meter
}

// HwmonSource reads instantaneous power from a hwmon chip's power*_input
// attributes (MicroWatts). Unlike RAPL there is no counter to difference;
// each read is already a power value.
type HwmonSource struct {
	logger   *slog.Logger
	procPath string
	chip     string
	inputs   []string // power*_input paths, sorted
	metadata map[string]string
}

var _ PowerSource = (*HwmonSource)(nil)

// HwmonOptionFn configures NewHwmonSource.
type HwmonOptionFn func(*HwmonSource)

// WithHwmonLogger sets the logger for chip discovery.
func WithHwmonLogger(logger *slog.Logger) HwmonOptionFn {
	return func(s *HwmonSource) {
		s.logger = logger.With("service", "hwmon")
	}
}

// WithHwmonProcPath sets the procfs path used to look up the CPU model for
// sample metadata. Empty disables the lookup.
func WithHwmonProcPath(procPath string) HwmonOptionFn {
	return func(s *HwmonSource) {
		s.procPath = procPath
	}
}

// NewHwmonSource scans sysfsPath/class/hwmon for a known CPU power chip
// and returns a source reading its power inputs. Returns a permanent error
// when no chip with power attributes is present.
func NewHwmonSource(sysfsPath string, opts ...HwmonOptionFn) (*HwmonSource, error) {
	s := &HwmonSource{
		logger: slog.Default().With("service", "hwmon"),
	}
	for _, opt := range opts {
		opt(s)
	}

	hwmonRoot := filepath.Join(sysfsPath, "class", "hwmon")
	entries, err := os.ReadDir(hwmonRoot)
	if err != nil {
		return nil, Permanent("hwmon interface not found at %s: %v", hwmonRoot, err)
	}

	for _, entry := range entries {
		chipDir := filepath.Join(hwmonRoot, entry.Name())
		name, err := readSysfsString(filepath.Join(chipDir, "name"))
		if err != nil || !cpuHwmonChips[name] {
			continue
		}

		inputs, err := filepath.Glob(filepath.Join(chipDir, "power*_input"))
		if err != nil || len(inputs) == 0 {
			s.logger.Debug("hwmon chip has no power attributes", "chip", name, "path", chipDir)
			continue
		}
		sort.Strings(inputs)

		s.chip = name
		s.inputs = inputs
		s.metadata = map[string]string{
			"source": "hwmon",
			"chip":   name,
			"path":   chipDir,
		}
		if s.procPath != "" {
			if model := cpuModelName(s.procPath); model != "" {
				s.metadata["cpu_model"] = model
			}
		}
		s.logger.Info("Using hwmon chip", "chip", name, "path", chipDir, "inputs", len(inputs))
		return s, nil
	}

	return nil, Permanent("no supported hwmon power chip found under %s", hwmonRoot)
}

func (s *HwmonSource) Name() string {
	return "hwmon-" + s.chip
}

// Read sums the chip's power inputs. Individual attribute reads can fail
// transiently while the driver updates them.
func (s *HwmonSource) Read() (Sample, error) {
	var total Power
	for _, input := range s.inputs {
		raw, err := readSysfsString(input)
		if err != nil {
			return Sample{}, Transient("reading %s: %v", input, err)
		}
		uw, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Sample{}, Transient("parsing %s value %q: %v", input, raw, err)
		}
		total += Power(uw) * MicroWatt
	}
	return Sample{Power: total, Metadata: s.metadata}, nil
}

func readSysfsString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
