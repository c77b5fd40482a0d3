// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the daemon configuration: defaults, YAML file
// loading and command-line flag overrides, in that order of precedence.
package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`
	}
	Monitor struct {
		Interval         time.Duration `yaml:"interval"`         // sampling interval
		FailureThreshold int           `yaml:"failureThreshold"` // consecutive transient failures tolerated
		StopTimeout      time.Duration `yaml:"stopTimeout"`      // how long Stop waits for the loop to exit
	}

	RaplSource struct {
		Enabled *bool    `yaml:"enabled"`
		Zones   []string `yaml:"zones"`
	}
	HwmonSource struct {
		Enabled *bool `yaml:"enabled"`
	}
	NvidiaSource struct {
		Enabled *bool `yaml:"enabled"`
		Devices []int `yaml:"devices"`
	}
	RedfishSource struct {
		Enabled     *bool         `yaml:"enabled"`
		Endpoint    string        `yaml:"endpoint"`
		Username    string        `yaml:"username"`
		Password    string        `yaml:"password"`
		Insecure    bool          `yaml:"insecure"`
		HTTPTimeout time.Duration `yaml:"httpTimeout"`
	}
	Sources struct {
		Rapl    RaplSource    `yaml:"rapl"`
		Hwmon   HwmonSource   `yaml:"hwmon"`
		Nvidia  NvidiaSource  `yaml:"nvidia"`
		Redfish RedfishSource `yaml:"redfish"`
	}

	StdoutExporter struct {
		Enabled  *bool         `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	}
	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}
	CSVExporter struct {
		Enabled *bool  `yaml:"enabled"`
		OutDir  string `yaml:"outDir"`
	}
	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
		CSV        CSVExporter        `yaml:"csv"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	Dev struct {
		FakeSource struct {
			Enabled   *bool   `yaml:"enabled"`
			BaseWatts float64 `yaml:"baseWatts"`
		} `yaml:"fake-source"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Host     Host     `yaml:"host"`
		Monitor  Monitor  `yaml:"monitor"`
		Sources  Sources  `yaml:"sources"`
		Exporter Exporter `yaml:"exporter"`
		Web      Web      `yaml:"web"`
		Dev      Dev      `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag  = "host.sysfs"
	HostProcFSFlag = "host.procfs"

	MonitorIntervalFlag         = "monitor.interval"
	MonitorFailureThresholdFlag = "monitor.failure-threshold"
	MonitorStopTimeout          = "monitor.stop-timeout" // not a flag

	SourceRaplEnabledFlag    = "source.rapl"
	SourceRaplZonesFlag      = "source.rapl.zones"
	SourceHwmonEnabledFlag   = "source.hwmon"
	SourceNvidiaEnabledFlag  = "source.nvidia"
	SourceRedfishEnabledFlag = "source.redfish"
	SourceRedfishEndpoint    = "source.redfish.endpoint" // not a flag, carries credentials

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	// Exporters
	ExporterStdoutEnabledFlag     = "exporter.stdout"
	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	ExporterCSVEnabledFlag        = "exporter.csv"
	ExporterCSVOutDirFlag         = "exporter.csv.out-dir"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS:  "/sys",
			ProcFS: "/proc",
		},
		Monitor: Monitor{
			Interval:         1 * time.Second,
			FailureThreshold: 5,
			StopTimeout:      5 * time.Second,
		},
		Sources: Sources{
			Rapl: RaplSource{
				Enabled: ptr.To(true),
				Zones:   []string{},
			},
			Hwmon: HwmonSource{
				Enabled: ptr.To(false),
			},
			Nvidia: NvidiaSource{
				Enabled: ptr.To(false),
			},
			Redfish: RedfishSource{
				Enabled:     ptr.To(false),
				HTTPTimeout: 10 * time.Second,
			},
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  ptr.To(false),
				Interval: 2 * time.Second,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
			},
			CSV: CSVExporter{
				Enabled: ptr.To(false),
				OutDir:  "powerprof-out",
			},
		},
		Web: Web{
			ListenAddresses: []string{":28283"},
		},
	}

	cfg.Dev.FakeSource.Enabled = ptr.To(false)
	cfg.Dev.FakeSource.BaseWatts = 85
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	var errRet error
	defer func() {
		err = file.Close()
		if err != nil && errRet == nil {
			errRet = err
		}
	}()

	cfg, errRet := Load(file)

	return cfg, errRet
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with the kingpin app
// and returns a ConfigUpdaterFn that updates the config from parsed flags,
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	hostProcFS := app.Flag(HostProcFSFlag, "Host procfs path").Default("/proc").ExistingDir()

	// monitor
	monitorInterval := app.Flag(MonitorIntervalFlag, "Sampling interval").Default("1s").Duration()
	monitorFailureThreshold := app.Flag(MonitorFailureThresholdFlag,
		"Consecutive transient read failures tolerated before a monitor stops itself").Default("5").Int()

	// sources
	raplEnabled := app.Flag(SourceRaplEnabledFlag, "Enable the RAPL CPU power source").Default("true").Bool()
	raplZones := app.Flag(SourceRaplZonesFlag, "RAPL zones to include; all zones when empty").Strings()
	hwmonEnabled := app.Flag(SourceHwmonEnabledFlag, "Enable the hwmon CPU power source").Default("false").Bool()
	nvidiaEnabled := app.Flag(SourceNvidiaEnabledFlag, "Enable the NVIDIA GPU power source").Default("false").Bool()
	redfishEnabled := app.Flag(SourceRedfishEnabledFlag, "Enable the Redfish BMC power source").Default("false").Bool()

	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(":28283").Strings()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("false").Bool()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()
	csvExporterEnabled := app.Flag(ExporterCSVEnabledFlag, "Enable CSV exporter").Default("false").Bool()
	csvOutDir := app.Flag(ExporterCSVOutDirFlag, "Directory CSV files are written to").Default("powerprof-out").String()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}
		if flagsSet[HostProcFSFlag] {
			cfg.Host.ProcFS = *hostProcFS
		}

		if flagsSet[MonitorIntervalFlag] {
			cfg.Monitor.Interval = *monitorInterval
		}
		if flagsSet[MonitorFailureThresholdFlag] {
			cfg.Monitor.FailureThreshold = *monitorFailureThreshold
		}

		if flagsSet[SourceRaplEnabledFlag] {
			cfg.Sources.Rapl.Enabled = raplEnabled
		}
		if flagsSet[SourceRaplZonesFlag] {
			cfg.Sources.Rapl.Zones = *raplZones
		}
		if flagsSet[SourceHwmonEnabledFlag] {
			cfg.Sources.Hwmon.Enabled = hwmonEnabled
		}
		if flagsSet[SourceNvidiaEnabledFlag] {
			cfg.Sources.Nvidia.Enabled = nvidiaEnabled
		}
		if flagsSet[SourceRedfishEnabledFlag] {
			cfg.Sources.Redfish.Enabled = redfishEnabled
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}
		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}
		if flagsSet[ExporterCSVEnabledFlag] {
			cfg.Exporter.CSV.Enabled = csvExporterEnabled
		}
		if flagsSet[ExporterCSVOutDirFlag] {
			cfg.Exporter.CSV.OutDir = *csvOutDir
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(strings.ToLower(c.Log.Level))
	c.Log.Format = strings.TrimSpace(strings.ToLower(c.Log.Format))
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}

	for i := range c.Sources.Rapl.Zones {
		c.Sources.Rapl.Zones[i] = strings.TrimSpace(c.Sources.Rapl.Zones[i])
	}
	c.Sources.Redfish.Endpoint = strings.TrimSpace(c.Sources.Redfish.Endpoint)
	c.Sources.Redfish.Username = strings.TrimSpace(c.Sources.Redfish.Username)

	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
	c.Exporter.CSV.OutDir = strings.TrimSpace(c.Exporter.CSV.OutDir)
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // host settings
		if _, skip := validationSkipped[SkipHostValidation]; !skip {
			needsSysFS := ptr.Deref(c.Sources.Rapl.Enabled, false) ||
				ptr.Deref(c.Sources.Hwmon.Enabled, false)
			if needsSysFS {
				if err := canReadDir(c.Host.SysFS); err != nil {
					errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
				}
				if err := canReadDir(c.Host.ProcFS); err != nil {
					errs = append(errs, fmt.Sprintf("invalid procfs path: %s: %s ", c.Host.ProcFS, err.Error()))
				}
			}
		}
	}
	{ // web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}
	{ // web listen addresses
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address must be specified")
		}
		for _, addr := range c.Web.ListenAddresses {
			if addr == "" {
				errs = append(errs, "web listen address cannot be empty")
				continue
			}
			if err := validateListenAddress(addr); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
			}
		}
	}
	{ // monitor
		if c.Monitor.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid monitor interval: %s must be positive", c.Monitor.Interval))
		}
		if c.Monitor.FailureThreshold < 1 {
			errs = append(errs, fmt.Sprintf("invalid monitor failure threshold: %d must be at least 1", c.Monitor.FailureThreshold))
		}
		if c.Monitor.StopTimeout <= 0 {
			errs = append(errs, fmt.Sprintf("invalid monitor stop timeout: %s must be positive", c.Monitor.StopTimeout))
		}
	}
	{ // redfish
		if ptr.Deref(c.Sources.Redfish.Enabled, false) {
			if c.Sources.Redfish.Endpoint == "" {
				errs = append(errs, fmt.Sprintf("%s not supplied but %s set to true", SourceRedfishEndpoint, SourceRedfishEnabledFlag))
			}
			if c.Sources.Redfish.HTTPTimeout <= 0 {
				errs = append(errs, fmt.Sprintf("invalid redfish http timeout: %s must be positive", c.Sources.Redfish.HTTPTimeout))
			}
		}
	}
	{ // csv exporter
		if ptr.Deref(c.Exporter.CSV.Enabled, false) && c.Exporter.CSV.OutDir == "" {
			errs = append(errs, fmt.Sprintf("%s not supplied but %s set to true", ExporterCSVOutDirFlag, ExporterCSVEnabledFlag))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil {
		return err
	}

	return nil
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	if err != nil {
		return err
	}

	return nil
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	// host can be empty for listening on all interfaces
	return validatePort(port)
}

func validatePort(port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

// String renders the config as YAML with credentials redacted.
func (c *Config) String() string {
	redacted := *c
	if redacted.Sources.Redfish.Password != "" {
		redacted.Sources.Redfish.Password = "***"
	}
	bytes, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(bytes)
}
