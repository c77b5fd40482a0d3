// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerprof/powerprof/internal/monitor"
)

type fakeRegistry struct {
	endpoints map[string]http.Handler
}

func (r *fakeRegistry) Register(endpoint, summary, description string, handler http.Handler) error {
	if r.endpoints == nil {
		r.endpoints = make(map[string]http.Handler)
	}
	r.endpoints[endpoint] = handler
	return nil
}

func TestExporterMountsMetrics(t *testing.T) {
	reg := &fakeRegistry{}
	exporter := NewExporter(monitor.NewCollector(), reg)

	assert.Equal(t, "prometheus", exporter.Name())
	require.NoError(t, exporter.Init())

	handler, ok := reg.endpoints["/metrics"]
	require.True(t, ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "powerprof_build_info")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestExporterUnknownDebugCollector(t *testing.T) {
	exporter := NewExporter(monitor.NewCollector(), &fakeRegistry{},
		WithDebugCollectors([]string{"bogus"}))

	assert.Error(t, exporter.Init())
}

func TestExporterProcessCollector(t *testing.T) {
	reg := &fakeRegistry{}
	exporter := NewExporter(monitor.NewCollector(), reg,
		WithDebugCollectors([]string{"process"}))

	require.NoError(t, exporter.Init())
	require.Contains(t, reg.endpoints, "/metrics")
}
