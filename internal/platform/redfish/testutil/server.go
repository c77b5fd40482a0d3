// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides a mock Redfish BMC for tests: a single chassis
// with one power supply, speaking both the PowerSubsystem API and the
// deprecated Power API (either can be switched off per scenario).
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// ServerConfig selects the mock BMC's behavior.
type ServerConfig struct {
	Username string
	Password string

	PowerWatts float64

	// DisablePowerSubsystem forces clients onto the deprecated Power API.
	DisablePowerSubsystem bool

	// DisablePower removes the deprecated Power API as well; with both
	// disabled the BMC has no usable power source.
	DisablePower bool

	// FailReads makes every power endpoint return HTTP 500.
	FailReads bool
}

// Server is a mock Redfish BMC backed by httptest.
type Server struct {
	server *httptest.Server

	mu  sync.RWMutex
	cfg ServerConfig
}

// NewServer starts a mock BMC. Close it when done.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}

	s := &Server{cfg: cfg}
	s.server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

func (s *Server) URL() string {
	return s.server.URL
}

func (s *Server) Close() {
	s.server.Close()
}

// SetPowerWatts changes the reported power at runtime.
func (s *Server) SetPowerWatts(watts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.PowerWatts = watts
}

// SetFailReads toggles HTTP 500 on the power endpoints.
func (s *Server) SetFailReads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FailReads = fail
}

func (s *Server) snapshot() ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("OData-Version", "4.0")

	switch r.URL.Path {
	case "/redfish/v1/", "/redfish/v1":
		s.writeServiceRoot(w)
	case "/redfish/v1/SessionService/Sessions":
		s.createSession(w, r)
	case "/redfish/v1/Chassis":
		s.writeChassisCollection(w)
	case "/redfish/v1/Chassis/1":
		s.writeChassis(w)
	case "/redfish/v1/Chassis/1/Power":
		s.writePower(w, r)
	case "/redfish/v1/Chassis/1/PowerSubsystem":
		s.writePowerSubsystem(w, r)
	case "/redfish/v1/Chassis/1/PowerSubsystem/PowerSupplies":
		s.writePowerSupplies(w, r)
	case "/redfish/v1/Chassis/1/PowerSubsystem/PowerSupplies/PS1":
		s.writePowerSupply(w, r)
	default:
		if strings.HasPrefix(r.URL.Path, "/redfish/v1/SessionService/Sessions/") {
			// session deletion on logout
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	}
}

func (s *Server) writeServiceRoot(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type":    "#ServiceRoot.v1_5_0.ServiceRoot",
		"@odata.id":      "/redfish/v1/",
		"Id":             "RootService",
		"Name":           "Root Service",
		"RedfishVersion": "1.6.1",
		"Chassis":        map[string]any{"@odata.id": "/redfish/v1/Chassis"},
		"SessionService": map[string]any{"@odata.id": "/redfish/v1/SessionService"},
		"Links": map[string]any{
			"Sessions": map[string]any{"@odata.id": "/redfish/v1/SessionService/Sessions"},
		},
	})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var creds struct {
		UserName string `json:"UserName"`
		Password string `json:"Password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	cfg := s.snapshot()
	if creds.UserName != cfg.Username || creds.Password != cfg.Password {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := fmt.Sprintf("session-%d", time.Now().UnixNano())
	w.Header().Set("X-Auth-Token", sessionID)
	w.Header().Set("Location", "/redfish/v1/SessionService/Sessions/"+sessionID)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type": "#Session.v1_1_0.Session",
		"@odata.id":   "/redfish/v1/SessionService/Sessions/" + sessionID,
		"Id":          sessionID,
		"Name":        "Session",
		"UserName":    creds.UserName,
	})
}

func (s *Server) writeChassisCollection(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type":         "#ChassisCollection.ChassisCollection",
		"@odata.id":           "/redfish/v1/Chassis",
		"Name":                "Chassis Collection",
		"Members@odata.count": 1,
		"Members": []map[string]any{
			{"@odata.id": "/redfish/v1/Chassis/1"},
		},
	})
}

func (s *Server) writeChassis(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type":    "#Chassis.v1_10_0.Chassis",
		"@odata.id":      "/redfish/v1/Chassis/1",
		"Id":             "1",
		"Name":           "Computer System Chassis",
		"ChassisType":    "RackMount",
		"PowerState":     "On",
		"Power":          map[string]any{"@odata.id": "/redfish/v1/Chassis/1/Power"},
		"PowerSubsystem": map[string]any{"@odata.id": "/redfish/v1/Chassis/1/PowerSubsystem"},
	})
}

func (s *Server) writePower(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot()
	if cfg.DisablePower {
		http.NotFound(w, r)
		return
	}
	if cfg.FailReads {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type": "#Power.v1_5_0.Power",
		"@odata.id":   "/redfish/v1/Chassis/1/Power",
		"Id":          "Power",
		"Name":        "Power",
		"PowerControl": []map[string]any{
			{
				"@odata.id":          "/redfish/v1/Chassis/1/Power#/PowerControl/0",
				"MemberId":           "0",
				"Name":               "System Power Control",
				"PowerConsumedWatts": cfg.PowerWatts,
				"PowerCapacityWatts": 750.0,
			},
		},
	})
}

func (s *Server) writePowerSubsystem(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot()
	if cfg.DisablePowerSubsystem {
		http.NotFound(w, r)
		return
	}
	if cfg.FailReads {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type":   "#PowerSubsystem.v1_1_0.PowerSubsystem",
		"@odata.id":     "/redfish/v1/Chassis/1/PowerSubsystem",
		"Id":            "PowerSubsystem",
		"Name":          "Power Subsystem for Chassis",
		"CapacityWatts": 1500.0,
		"PowerSupplies": map[string]any{
			"@odata.id": "/redfish/v1/Chassis/1/PowerSubsystem/PowerSupplies",
		},
	})
}

func (s *Server) writePowerSupplies(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot()
	if cfg.DisablePowerSubsystem {
		http.NotFound(w, r)
		return
	}
	if cfg.FailReads {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type":         "#PowerSupplyCollection.PowerSupplyCollection",
		"@odata.id":           "/redfish/v1/Chassis/1/PowerSubsystem/PowerSupplies",
		"Name":                "Power Supply Collection",
		"Members@odata.count": 1,
		"Members": []map[string]any{
			{"@odata.id": "/redfish/v1/Chassis/1/PowerSubsystem/PowerSupplies/PS1"},
		},
	})
}

func (s *Server) writePowerSupply(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot()
	if cfg.DisablePowerSubsystem {
		http.NotFound(w, r)
		return
	}
	if cfg.FailReads {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"@odata.type":        "#PowerSupply.v1_6_0.PowerSupply",
		"@odata.id":          "/redfish/v1/Chassis/1/PowerSubsystem/PowerSupplies/PS1",
		"Id":                 "PS1",
		"Name":               "Power Supply 1",
		"PowerSupplyType":    "AC",
		"PowerCapacityWatts": 750.0,
		"PowerOutputWatts":   cfg.PowerWatts,
		"PowerInputWatts":    cfg.PowerWatts / 0.9,
		"EfficiencyPercent":  90.0,
	})
}
