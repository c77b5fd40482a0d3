// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package redfish reads full-system power from a BMC over the Redfish
// protocol. It prefers the PowerSubsystem API and falls back to the
// deprecated Power API on BMCs that predate it.
package redfish

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stmcginnis/gofish"
	gofishredfish "github.com/stmcginnis/gofish/redfish"

	"github.com/powerprof/powerprof/internal/device"
)

// powerAPI is the strategy used to read chassis power.
type powerAPI string

const (
	apiUnknown        powerAPI = ""
	apiPowerSubsystem powerAPI = "PowerSubsystem"
	apiPower          powerAPI = "Power"
)

// BMCConfig identifies and authenticates against one BMC.
type BMCConfig struct {
	Endpoint    string
	Username    string
	Password    string
	Insecure    bool
	HTTPTimeout time.Duration
}

// Source is a device.PowerSource backed by a BMC. Connect happens in Init,
// not in the constructor, so a daemon can come up before its BMC does.
type Source struct {
	logger *slog.Logger
	cfg    BMCConfig

	client   *gofish.APIClient
	strategy powerAPI
}

var _ device.PowerSource = (*Source)(nil)

// OptionFn configures a Source.
type OptionFn func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OptionFn {
	return func(s *Source) {
		s.logger = logger.With("service", "redfish")
	}
}

// NewSource creates a BMC power source from cfg.
func NewSource(cfg BMCConfig, opts ...OptionFn) (*Source, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("BMC endpoint cannot be empty")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	s := &Source{
		logger: slog.Default().With("service", "redfish"),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Name() string {
	return "redfish-bmc"
}

// Init connects to the BMC and determines which power API it speaks.
func (s *Source) Init() error {
	httpClient := &http.Client{Timeout: s.cfg.HTTPTimeout}
	if s.cfg.Insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	// NOTE: gofish keeps the connect context for every later request, so
	// the connection must not be made with a timeout context.
	client, err := gofish.Connect(gofish.ClientConfig{
		Endpoint:   s.cfg.Endpoint,
		Username:   s.cfg.Username,
		Password:   s.cfg.Password,
		HTTPClient: httpClient,
	})
	if err != nil {
		return fmt.Errorf("connecting to BMC at %s: %w", s.cfg.Endpoint, err)
	}
	s.client = client

	chassis, err := s.chassisList()
	if err != nil {
		s.close()
		return err
	}

	strategy, err := s.determineStrategy(chassis)
	if err != nil {
		s.close()
		return err
	}
	s.strategy = strategy

	s.logger.Info("Connected to BMC", "endpoint", s.cfg.Endpoint, "api", string(strategy))
	return nil
}

// Shutdown logs out of the BMC session.
func (s *Source) Shutdown() error {
	s.close()
	return nil
}

func (s *Source) close() {
	if s.client == nil {
		return
	}
	s.client.Logout()
	s.client = nil
}

// Read sums the power draw reported by every chassis. The BMC round trip
// can take hundreds of milliseconds; callers account for that via the
// drift-compensated sampling loop.
func (s *Source) Read() (device.Sample, error) {
	if s.client == nil || s.strategy == apiUnknown {
		return device.Sample{}, device.Permanent("BMC source not initialized")
	}

	chassis, err := s.chassisList()
	if err != nil {
		// The session may have expired or the BMC may be busy; both are
		// worth retrying on the next tick.
		return device.Sample{}, device.Transient("listing chassis: %v", err)
	}

	var total device.Power
	var ids []string
	for _, ch := range chassis {
		if ch == nil {
			continue
		}

		var watts float64
		switch s.strategy {
		case apiPowerSubsystem:
			watts, err = readPowerSubsystem(ch)
		case apiPower:
			watts, err = readPowerControl(ch)
		}
		if err != nil {
			s.logger.Warn("Failed to read chassis power", "chassis", ch.ID, "error", err)
			continue
		}

		total += device.Power(watts) * device.Watt
		ids = append(ids, ch.ID)
	}

	if len(ids) == 0 {
		return device.Sample{}, device.Transient("no chassis produced a power reading")
	}

	return device.Sample{
		Power: total,
		Metadata: map[string]string{
			"source":  "redfish",
			"chassis": strings.Join(ids, ","),
			"api":     string(s.strategy),
		},
	}, nil
}

func (s *Source) chassisList() ([]*gofishredfish.Chassis, error) {
	service := s.client.Service
	if service == nil {
		return nil, fmt.Errorf("BMC service root unavailable")
	}
	chassis, err := service.Chassis()
	if err != nil {
		return nil, fmt.Errorf("retrieving chassis collection: %w", err)
	}
	if len(chassis) == 0 {
		return nil, fmt.Errorf("BMC reports no chassis")
	}
	return chassis, nil
}

// determineStrategy probes the chassis until one answers on either power
// API. A BMC that supports neither can never produce a sample.
func (s *Source) determineStrategy(chassis []*gofishredfish.Chassis) (powerAPI, error) {
	for _, ch := range chassis {
		if ch == nil {
			continue
		}
		if _, err := readPowerSubsystem(ch); err == nil {
			return apiPowerSubsystem, nil
		}
		if _, err := readPowerControl(ch); err == nil {
			return apiPower, nil
		}
	}
	return apiUnknown, fmt.Errorf(
		"neither PowerSubsystem nor Power API available on any of %d chassis", len(chassis))
}

// readPowerSubsystem sums power supply output via the modern API.
func readPowerSubsystem(ch *gofishredfish.Chassis) (float64, error) {
	subsystem, err := ch.PowerSubsystem()
	if err != nil {
		return 0, fmt.Errorf("power subsystem: %w", err)
	}
	if subsystem == nil {
		return 0, fmt.Errorf("no power subsystem on chassis %s", ch.ID)
	}

	supplies, err := subsystem.PowerSupplies()
	if err != nil {
		return 0, fmt.Errorf("power supplies: %w", err)
	}

	var watts float64
	count := 0
	for _, supply := range supplies {
		if supply.PowerOutputWatts == 0 {
			continue
		}
		watts += float64(supply.PowerOutputWatts)
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("no power supply with a non-zero reading on chassis %s", ch.ID)
	}
	return watts, nil
}

// readPowerControl sums PowerControl consumption via the deprecated API.
func readPowerControl(ch *gofishredfish.Chassis) (float64, error) {
	power, err := ch.Power()
	if err != nil {
		return 0, fmt.Errorf("power: %w", err)
	}
	if power == nil || len(power.PowerControl) == 0 {
		return 0, fmt.Errorf("no power control data on chassis %s", ch.ID)
	}

	var watts float64
	count := 0
	for _, pc := range power.PowerControl {
		if pc.PowerConsumedWatts == 0 {
			continue
		}
		watts += float64(pc.PowerConsumedWatts)
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("no power control entry with a non-zero reading on chassis %s", ch.ID)
	}
	return watts, nil
}
