// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics collects per-route request counters and latency
// histograms (spec.md §4.8 "Metrics"), exposed as a JSON snapshot at
// GET /manage/stats rather than a Prometheus scrape endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Manager owns the Prometheus registry backing the route metrics and
// renders it into the JSON shape served at /manage/stats.
type Manager struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	startedAt       time.Time
}

// NewManager builds a Manager with Go/process collectors plus the
// route-level counters and histogram registered under it.
func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zimi_http_requests_total",
			Help: "Total HTTP requests handled, by route and status class.",
		},
		[]string{"route", "method", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zimi_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	registry.MustRegister(requestsTotal, requestDuration)

	log.Info().Msg("metrics manager initialized")

	return &Manager{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		startedAt:       time.Now(),
	}
}

// Observe records one completed request for the /manage/stats snapshot.
func (m *Manager) Observe(route, method string, status int, elapsed time.Duration) {
	statusClass := statusClassOf(status)
	m.requestsTotal.WithLabelValues(route, method, statusClass).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func statusClassOf(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// RouteStats is one route's counters and latency summary in the
// /manage/stats response.
type RouteStats struct {
	Route           string  `json:"route"`
	Total           uint64  `json:"total"`
	By4xx           uint64  `json:"count4xx"`
	By5xx           uint64  `json:"count5xx"`
	P50Seconds      float64 `json:"p50Seconds"`
	P95Seconds      float64 `json:"p95Seconds"`
	AverageSeconds  float64 `json:"averageSeconds"`
	SampleCount     uint64  `json:"sampleCount"`
}

// Snapshot is the full body returned by GET /manage/stats.
type Snapshot struct {
	UptimeSeconds float64      `json:"uptimeSeconds"`
	Routes        []RouteStats `json:"routes"`
}

// Snapshot gathers the registry and flattens it into per-route JSON stats.
func (m *Manager) Snapshot() (Snapshot, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return Snapshot{}, err
	}

	counts := map[string]*RouteStats{}
	histograms := map[string]*dto.Histogram{}

	for _, fam := range families {
		switch fam.GetName() {
		case "zimi_http_requests_total":
			for _, metric := range fam.GetMetric() {
				route := labelValue(metric, "route")
				status := labelValue(metric, "status")
				rs := counts[route]
				if rs == nil {
					rs = &RouteStats{Route: route}
					counts[route] = rs
				}
				count := uint64(metric.GetCounter().GetValue())
				rs.Total += count
				switch status {
				case "4xx":
					rs.By4xx += count
				case "5xx":
					rs.By5xx += count
				}
			}
		case "zimi_http_request_duration_seconds":
			for _, metric := range fam.GetMetric() {
				route := labelValue(metric, "route")
				h := metric.GetHistogram()
				histograms[route] = h
			}
		}
	}

	out := Snapshot{UptimeSeconds: time.Since(m.startedAt).Seconds()}
	for route, rs := range counts {
		if h, ok := histograms[route]; ok {
			rs.SampleCount = h.GetSampleCount()
			if h.GetSampleCount() > 0 {
				rs.AverageSeconds = h.GetSampleSum() / float64(h.GetSampleCount())
			}
			rs.P50Seconds = quantileFromBuckets(h, 0.50)
			rs.P95Seconds = quantileFromBuckets(h, 0.95)
		}
		out.Routes = append(out.Routes, *rs)
	}
	return out, nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// quantileFromBuckets estimates a quantile from a Prometheus histogram's
// cumulative bucket counts as the upper bound of the first bucket that
// reaches it (no interpolation within a bucket), good enough for an
// operator's rough-latency glance rather than alerting-grade precision.
func quantileFromBuckets(h *dto.Histogram, q float64) float64 {
	total := float64(h.GetSampleCount())
	if total == 0 {
		return 0
	}
	target := total * q
	buckets := h.GetBucket()
	for _, b := range buckets {
		if float64(b.GetCumulativeCount()) >= target {
			return b.GetUpperBound()
		}
	}
	return 0
}

// Registry exposes the underlying Prometheus registry, e.g. for tests
// that want to assert on raw metric families.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
