// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the host
// service: navigation execution counters and latency, exploration
// outcomes, and collectors over the tree cache's internal counters.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/DeviceLab/services/host/cache"
)

const metricsNamespace = "devicelab"

const hostSubsystem = "host"

// HostMetrics holds the host service's Prometheus metrics. Initialize
// once at startup via InitMetrics.
type HostMetrics struct {
	// NavigationsTotal counts navigation executions by terminal status.
	// Labels: device_id, status (completed, error)
	NavigationsTotal *prometheus.CounterVec

	// NavigationDurationSeconds measures end-to-end navigation time.
	// Labels: device_id
	NavigationDurationSeconds *prometheus.HistogramVec

	// NavigationStepsTotal counts executed path steps, recovered or not.
	// Labels: device_id, recovered (true, false)
	NavigationStepsTotal *prometheus.CounterVec

	// ExplorationsTotal counts explorations by terminal state.
	// Labels: device_id, outcome (finalized, cancelled, failed, validation_failed)
	ExplorationsTotal *prometheus.CounterVec

	// ActiveExecutions tracks currently running async executions.
	ActiveExecutions prometheus.Gauge

	// CallbacksTotal counts task completion callbacks by delivery result.
	// Labels: status (delivered, failed)
	CallbacksTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *HostMetrics

// InitMetrics registers the host metrics with the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *HostMetrics {
	DefaultMetrics = &HostMetrics{
		NavigationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: hostSubsystem,
				Name:      "navigations_total",
				Help:      "Navigation executions by terminal status",
			},
			[]string{"device_id", "status"},
		),

		NavigationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: hostSubsystem,
				Name:      "navigation_duration_seconds",
				Help:      "End-to-end navigation execution time",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"device_id"},
		),

		NavigationStepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: hostSubsystem,
				Name:      "navigation_steps_total",
				Help:      "Executed navigation steps",
			},
			[]string{"device_id", "recovered"},
		),

		ExplorationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: hostSubsystem,
				Name:      "explorations_total",
				Help:      "Explorations by terminal state",
			},
			[]string{"device_id", "outcome"},
		),

		ActiveExecutions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: hostSubsystem,
				Name:      "active_executions",
				Help:      "Currently running async executions",
			},
		),

		CallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: hostSubsystem,
				Name:      "callbacks_total",
				Help:      "Task completion callbacks by delivery result",
			},
			[]string{"status"},
		),
	}
	return DefaultMetrics
}

// RegisterCacheCollectors exposes the tree cache's internal counters
// as Prometheus metrics without the cache importing this package.
func RegisterCacheCollectors(tc *cache.TreeCache) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Cached unified graphs",
	}, func() float64 { return float64(tc.Stats().EntryCount) })

	counters := []struct {
		name string
		help string
		read func(cache.Stats) int64
	}{
		{"hits_total", "Cache lookups served from memory", func(s cache.Stats) int64 { return s.Hits }},
		{"misses_total", "Cache lookups that found nothing usable", func(s cache.Stats) int64 { return s.Misses }},
		{"evictions_total", "Entries evicted by the LRU bound", func(s cache.Stats) int64 { return s.Evictions }},
		{"builds_total", "Unified graph builds", func(s cache.Stats) int64 { return s.BuildCount }},
		{"build_errors_total", "Unified graph builds that failed", func(s cache.Stats) int64 { return s.ErrorCount }},
	}
	for _, c := range counters {
		read := c.read
		promauto.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(read(tc.Stats())) })
	}
}

// RecordNavigation records one finished navigation execution.
func (m *HostMetrics) RecordNavigation(deviceID, status string, seconds float64) {
	m.NavigationsTotal.WithLabelValues(deviceID, status).Inc()
	m.NavigationDurationSeconds.WithLabelValues(deviceID).Observe(seconds)
}

// RecordSteps records executed steps of one navigation.
func (m *HostMetrics) RecordSteps(deviceID string, total, recovered int) {
	if total > recovered {
		m.NavigationStepsTotal.WithLabelValues(deviceID, "false").Add(float64(total - recovered))
	}
	if recovered > 0 {
		m.NavigationStepsTotal.WithLabelValues(deviceID, "true").Add(float64(recovered))
	}
}

// ExecutionStarted bumps the running-execution gauge.
func (m *HostMetrics) ExecutionStarted() {
	m.ActiveExecutions.Inc()
}

// ExecutionFinished drops the running-execution gauge.
func (m *HostMetrics) ExecutionFinished() {
	m.ActiveExecutions.Dec()
}

// RecordExploration records one exploration reaching a terminal state.
func (m *HostMetrics) RecordExploration(deviceID, outcome string) {
	m.ExplorationsTotal.WithLabelValues(deviceID, outcome).Inc()
}

// RecordCallback records one task callback delivery attempt.
func (m *HostMetrics) RecordCallback(delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	m.CallbacksTotal.WithLabelValues(status).Inc()
}
