// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKeep Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the AuthKeep Prometheus metrics.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	SweepRemoved   *prometheus.CounterVec
}

// NewMetrics creates and registers the AuthKeep metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeep_auth_operations_total",
				Help: "Total number of auth lifecycle operations by operation and result code",
			},
			[]string{"operation", "code"},
		),
		SweepRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkeep_sweep_removed_total",
				Help: "Total number of expired records removed by sweeps, by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(m.AuthOperations)
	reg.MustRegister(m.SweepRemoved)

	return m
}

// RecordAuthOutcome counts one auth operation. code is "OK" on success.
func (m *Metrics) RecordAuthOutcome(operation, code string) {
	m.AuthOperations.WithLabelValues(operation, code).Inc()
}

// RecordSweep adds n removed records of the given kind.
func (m *Metrics) RecordSweep(kind string, n int64) {
	if n <= 0 {
		return
	}
	m.SweepRemoved.WithLabelValues(kind).Add(float64(n))
}
