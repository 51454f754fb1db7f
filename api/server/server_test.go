// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"

	utilmetric "github.com/luxfi/yieldvm/utils/metric"
)

func newTestServer(t *testing.T) (*server, metric.Registry) {
	registry := metric.NewRegistry()
	s, err := New(log.NewNoOpLogger(), nil, []string{"https://example.com"}, time.Second, registry, DefaultHTTPConfig())
	require.NoError(t, err)
	return s.(*server), registry
}

func TestAddRoute(t *testing.T) {
	require := require.New(t)

	s, registry := newTestServer(t)
	teapot := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	require.NoError(s.AddRoute(teapot, "yield", ""))
	require.NoError(s.AddRoute(teapot, "yield", "/metrics"))
	require.ErrorIs(s.AddRoute(teapot, "yield", ""), errRouteExists)

	for _, path := range []string{"/ext/yield", "/ext/yield/metrics"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(http.StatusTeapot, w.Code, path)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ext/other", nil))
	require.Equal(http.StatusNotFound, w.Code)

	requests, ok, err := utilmetric.Value(registry, "api_requests_total", metric.Labels{
		"method":   http.MethodPost,
		"endpoint": "/ext/yield",
	})
	require.NoError(err)
	require.True(ok)
	require.InDelta(1, requests, 0)
}

func TestCORS(t *testing.T) {
	require := require.New(t)

	s, _ := newTestServer(t)
	require.NoError(s.AddRoute(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), "yield", ""))

	r := httptest.NewRequest(http.MethodPost, "/ext/yield", nil)
	r.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	require.Equal("https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRegistrationFailure(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	m, err := newMetrics(registry)
	require.NoError(err)
	require.NotNil(m)

	m, err = newMetrics(registry)
	require.Error(err)
	require.Nil(m)
}
