// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlLib is the slice of NVML this source needs. The indirection exists
// so tests can run without a GPU or the NVML shared library.
type nvmlLib interface {
	Init() error
	Shutdown() error
	DriverVersion() (string, error)
	DeviceCount() (int, error)
	Device(index int) (nvmlDevice, error)
}

type nvmlDevice interface {
	Name() (string, error)
	PowerUsage() (uint32, error) // MilliWatts
	Utilization() (gpu uint32, mem uint32, err error)
	Temperature() (uint32, error) // Celsius
}

// NvidiaSource reads GPU power draw through NVML. When several devices are
// selected their draw is summed into one sample, matching the monitor
// model of one source per physical sampling target.
type NvidiaSource struct {
	logger  *slog.Logger
	lib     nvmlLib
	indexes []int // configured device indexes; nil means all

	devices []int
	names   []string
	driver  string
}

var _ PowerSource = (*NvidiaSource)(nil)

// NvidiaOptionFn configures a NvidiaSource.
type NvidiaOptionFn func(*NvidiaSource)

// WithNvidiaLogger sets the logger.
func WithNvidiaLogger(logger *slog.Logger) NvidiaOptionFn {
	return func(s *NvidiaSource) {
		s.logger = logger.With("service", "nvml")
	}
}

// WithNvidiaDevices restricts sampling to the given device indexes.
func WithNvidiaDevices(indexes []int) NvidiaOptionFn {
	return func(s *NvidiaSource) {
		s.indexes = indexes
	}
}

// withNvmlLib replaces the NVML backend, for testing.
func withNvmlLib(lib nvmlLib) NvidiaOptionFn {
	return func(s *NvidiaSource) {
		s.lib = lib
	}
}

// NewNvidiaSource returns a source for NVIDIA GPU power draw. NVML is not
// touched until Init is called.
func NewNvidiaSource(opts ...NvidiaOptionFn) *NvidiaSource {
	s := &NvidiaSource{
		logger: slog.Default().With("service", "nvml"),
		lib:    realNvmlLib{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *NvidiaSource) Name() string {
	return "nvidia-gpu"
}

// Init loads NVML and resolves the selected devices.
func (s *NvidiaSource) Init() error {
	if err := s.lib.Init(); err != nil {
		return fmt.Errorf("initializing NVML: %w", err)
	}

	if driver, err := s.lib.DriverVersion(); err == nil {
		s.driver = driver
	}

	count, err := s.lib.DeviceCount()
	if err != nil {
		return fmt.Errorf("counting GPU devices: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("no NVIDIA GPU devices found")
	}

	selected := s.indexes
	if len(selected) == 0 {
		selected = make([]int, count)
		for i := range selected {
			selected[i] = i
		}
	}

	for _, idx := range selected {
		if idx < 0 || idx >= count {
			return fmt.Errorf("GPU index %d out of range, %d devices present", idx, count)
		}
		dev, err := s.lib.Device(idx)
		if err != nil {
			return fmt.Errorf("opening GPU %d: %w", idx, err)
		}
		name, err := dev.Name()
		if err != nil {
			name = "unknown"
		}
		s.devices = append(s.devices, idx)
		s.names = append(s.names, name)
		s.logger.Info("Monitoring GPU", "index", idx, "name", name)
	}

	return nil
}

// Shutdown unloads NVML.
func (s *NvidiaSource) Shutdown() error {
	return s.lib.Shutdown()
}

// Read sums the power draw of the selected devices. Per-device utilization
// and temperature ride along as metadata.
func (s *NvidiaSource) Read() (Sample, error) {
	if len(s.devices) == 0 {
		return Sample{}, Permanent("NVML source not initialized")
	}

	var total Power
	md := map[string]string{
		"source": "nvidia-gpu",
		"gpus":   strings.Join(s.names, ","),
	}
	if s.driver != "" {
		md["driver"] = s.driver
	}
	for _, idx := range s.devices {
		dev, err := s.lib.Device(idx)
		if err != nil {
			return Sample{}, Transient("opening GPU %d: %v", idx, err)
		}

		mw, err := dev.PowerUsage()
		if err != nil {
			return Sample{}, Transient("power usage of GPU %d: %v", idx, err)
		}
		total += Power(mw) * MilliWatt

		key := "gpu" + strconv.Itoa(idx)
		if gpuUtil, memUtil, err := dev.Utilization(); err == nil {
			md[key+"_util"] = strconv.Itoa(int(gpuUtil))
			md[key+"_mem_util"] = strconv.Itoa(int(memUtil))
		}
		if temp, err := dev.Temperature(); err == nil {
			md[key+"_temp_c"] = strconv.Itoa(int(temp))
		}
	}

	return Sample{Power: total, Metadata: md}, nil
}

// realNvmlLib backs nvmlLib with the NVML shared library.
type realNvmlLib struct{}

func (realNvmlLib) Init() error {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	return nil
}

func (realNvmlLib) Shutdown() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}

func (realNvmlLib) DriverVersion() (string, error) {
	version, ret := nvml.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		return "", fmt.Errorf("nvml driver version: %s", nvml.ErrorString(ret))
	}
	return version, nil
}

func (realNvmlLib) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}
	return count, nil
}

func (realNvmlLib) Device(index int) (nvmlDevice, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml device %d: %s", index, nvml.ErrorString(ret))
	}
	return realNvmlDevice{dev}, nil
}

type realNvmlDevice struct {
	dev nvml.Device
}

func (d realNvmlDevice) Name() (string, error) {
	name, ret := d.dev.GetName()
	if ret != nvml.SUCCESS {
		return "", fmt.Errorf("nvml device name: %s", nvml.ErrorString(ret))
	}
	return name, nil
}

func (d realNvmlDevice) PowerUsage() (uint32, error) {
	mw, ret := d.dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml power usage: %s", nvml.ErrorString(ret))
	}
	return mw, nil
}

func (d realNvmlDevice) Utilization() (uint32, uint32, error) {
	util, ret := d.dev.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return 0, 0, fmt.Errorf("nvml utilization: %s", nvml.ErrorString(ret))
	}
	return util.Gpu, util.Memory, nil
}

func (d realNvmlDevice) Temperature() (uint32, error) {
	temp, ret := d.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml temperature: %s", nvml.ErrorString(ret))
	}
	return temp, nil
}
