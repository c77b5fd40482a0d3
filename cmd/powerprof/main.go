// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/utils/ptr"

	"github.com/powerprof/powerprof/config"
	"github.com/powerprof/powerprof/internal/device"
	csvexport "github.com/powerprof/powerprof/internal/export/csv"
	"github.com/powerprof/powerprof/internal/export/prometheus"
	"github.com/powerprof/powerprof/internal/export/stdout"
	"github.com/powerprof/powerprof/internal/logger"
	"github.com/powerprof/powerprof/internal/monitor"
	"github.com/powerprof/powerprof/internal/platform/redfish"
	"github.com/powerprof/powerprof/internal/server"
	"github.com/powerprof/powerprof/internal/service"
	"github.com/powerprof/powerprof/internal/version"
)

func main() {
	cfg, duration, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(log)
	printConfigInfo(log, cfg)

	if err := run(log, cfg, duration); err != nil {
		log.Error("Powerprof terminated with an error", "error", err)
		os.Exit(1)
	}
	log.Info("Graceful shutdown completed")
}

func run(log *slog.Logger, cfg *config.Config, duration time.Duration) error {
	sources, err := createSources(log, cfg)
	if err != nil {
		return err
	}

	collector := monitor.NewCollector(monitor.WithCollectorLogger(log))
	for _, src := range sources {
		m, err := monitor.New(src.Name(), src,
			monitor.WithLogger(log),
			monitor.WithInterval(cfg.Monitor.Interval),
			monitor.WithFailureThreshold(cfg.Monitor.FailureThreshold),
			monitor.WithStopTimeout(cfg.Monitor.StopTimeout),
		)
		if err != nil {
			return fmt.Errorf("creating monitor for %s: %w", src.Name(), err)
		}
		if err := collector.Add(m); err != nil {
			return err
		}
	}

	if duration > 0 {
		return runOnce(log, cfg, collector, sources, duration)
	}
	return runDaemon(log, cfg, collector, sources)
}

// runOnce collects for the given duration, writes the configured exports
// and exits.
func runOnce(log *slog.Logger, cfg *config.Config, collector *monitor.Collector, sources []device.PowerSource, duration time.Duration) error {
	services := sourceServices(sources)
	if err := service.Init(log, services); err != nil {
		return err
	}
	defer shutdownServices(log, services)

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("Collecting", "duration", duration, "monitors", len(collector.Monitors()))
	if _, err := collector.CollectFor(ctx, duration); err != nil {
		return err
	}

	stdout.WriteSummary(os.Stdout, collector.Monitors())

	if ptr.Deref(cfg.Exporter.CSV.Enabled, false) {
		exporter, err := csvexport.NewExporter(cfg.Exporter.CSV.OutDir, csvexport.WithLogger(log))
		if err != nil {
			return err
		}
		if err := exporter.Export(collector); err != nil {
			return err
		}
	}
	return nil
}

// runDaemon runs the collector and the configured exporters until a
// signal arrives.
func runDaemon(log *slog.Logger, cfg *config.Config, collector *monitor.Collector, sources []device.PowerSource) error {
	services := sourceServices(sources)
	services = append(services, collector)

	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		apiServer := server.NewAPIServer(
			server.WithLogger(log),
			server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
		)
		promExporter := prometheus.NewExporter(collector, apiServer,
			prometheus.WithLogger(log),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
		)
		services = append(services, apiServer, promExporter)
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		services = append(services, stdout.NewExporter(collector,
			stdout.WithLogger(log),
			stdout.WithInterval(cfg.Exporter.Stdout.Interval),
		))
	}

	services = append(services, service.NewSignalHandler(log, os.Interrupt, syscall.SIGTERM))

	if err := service.Init(log, services); err != nil {
		return err
	}
	return service.Run(context.Background(), log, services)
}

// createSources builds the enabled power sources. At least one source
// must be enabled for the process to be useful.
func createSources(log *slog.Logger, cfg *config.Config) ([]device.PowerSource, error) {
	var sources []device.PowerSource

	if ptr.Deref(cfg.Sources.Rapl.Enabled, false) {
		src, err := device.NewRaplSource(cfg.Host.SysFS,
			device.WithRaplLogger(log),
			device.WithRaplZoneFilter(cfg.Sources.Rapl.Zones),
			device.WithRaplProcPath(cfg.Host.ProcFS),
		)
		if err != nil {
			return nil, fmt.Errorf("creating RAPL source: %w", err)
		}
		sources = append(sources, src)
	}

	if ptr.Deref(cfg.Sources.Hwmon.Enabled, false) {
		src, err := device.NewHwmonSource(cfg.Host.SysFS,
			device.WithHwmonLogger(log),
			device.WithHwmonProcPath(cfg.Host.ProcFS),
		)
		if err != nil {
			return nil, fmt.Errorf("creating hwmon source: %w", err)
		}
		sources = append(sources, src)
	}

	if ptr.Deref(cfg.Sources.Nvidia.Enabled, false) {
		sources = append(sources, device.NewNvidiaSource(
			device.WithNvidiaLogger(log),
			device.WithNvidiaDevices(cfg.Sources.Nvidia.Devices),
		))
	}

	if ptr.Deref(cfg.Sources.Redfish.Enabled, false) {
		src, err := redfish.NewSource(redfish.BMCConfig{
			Endpoint:    cfg.Sources.Redfish.Endpoint,
			Username:    cfg.Sources.Redfish.Username,
			Password:    cfg.Sources.Redfish.Password,
			Insecure:    cfg.Sources.Redfish.Insecure,
			HTTPTimeout: cfg.Sources.Redfish.HTTPTimeout,
		}, redfish.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("creating redfish source: %w", err)
		}
		sources = append(sources, src)
	}

	if ptr.Deref(cfg.Dev.FakeSource.Enabled, false) {
		sources = append(sources, device.NewFakeSource("fake-cpu",
			device.WithFakeBasePower(device.Power(cfg.Dev.FakeSource.BaseWatts)*device.Watt),
		))
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no power sources enabled")
	}
	return sources, nil
}

// sourceServices returns the sources that participate in the service
// lifecycle (those needing Init or Shutdown).
func sourceServices(sources []device.PowerSource) []service.Service {
	var services []service.Service
	for _, src := range sources {
		if s, ok := src.(service.Service); ok {
			services = append(services, s)
		}
	}
	return services
}

func shutdownServices(log *slog.Logger, services []service.Service) {
	for i := len(services) - 1; i >= 0; i-- {
		sd, ok := services[i].(service.Shutdowner)
		if !ok {
			continue
		}
		if err := sd.Shutdown(); err != nil {
			log.Warn("service shutdown failed", "service", services[i].Name(), "error", err)
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM so a bounded run can
// be cut short.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Info("Powerprof version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, time.Duration, error) {
	const appName = "powerprof"
	app := kingpin.New(appName, "Multi-source power sampling engine.")

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	duration := app.Flag("duration",
		"Collect for this long, print a summary and exit; 0 runs as a daemon").Default("0").Duration()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		log.Info("Loading configuration file", "path", *configFile)
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			log.Error("Error loading config file", "error", err.Error())
			return nil, 0, err
		}
		cfg = loadedCfg
	}

	// command line flags override config file settings
	if err := updateConfig(cfg); err != nil {
		log.Error("Error applying command line flags", "error", err.Error())
		return nil, 0, err
	}

	return cfg, *duration, nil
}

func printConfigInfo(log *slog.Logger, cfg *config.Config) {
	if !log.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}
