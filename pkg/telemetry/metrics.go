/*
Copyright 2024 The Entitynet Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package telemetry provides the ambient instrumentation hooks described in
// §4.11: a small set of Prometheus collectors covering in-flight packets,
// per-path backlog depth, completed migrations, redirect-table size and
// fatal-error counts. Unlike the teacher's pkg/metricscollector (which
// registers package-level collectors against controller-runtime's global
// metrics registry), every Metrics value here is registered against a
// caller-supplied prometheus.Registerer so that multiple connections - or
// multiple tests - in one process never collide on collector names.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the Prometheus namespace every collector in this package is
// registered under.
const Namespace = "entitynet"

// Metrics bundles the ambient collectors a connection reports into, per
// §4.11. A zero-value *Metrics is never used directly - callers obtain one
// from New, or pass a nil *Metrics to skip instrumentation entirely (every
// recording method below is a nil-safe no-op, matching the teacher's
// pattern of always having a safe, possibly-discarding collaborator rather
// than nil-checking at every call site).
type Metrics struct {
	inFlightPackets   prometheus.Gauge
	backlogDepth      *prometheus.GaugeVec
	migrationsTotal   prometheus.Counter
	redirectTableSize prometheus.Gauge
	fatalErrorsTotal  *prometheus.CounterVec
}

// New creates a Metrics bundle and registers its collectors against reg.
// reg is typically a fresh prometheus.NewRegistry() per connection or test,
// never prometheus.DefaultRegisterer directly (see package doc comment).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inFlightPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "in_flight_packets",
			Help:      "Number of unacknowledged outbound packets currently tracked by the sent-command record.",
		}),
		backlogDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "backlog_depth",
			Help:      "Number of buffered-but-not-yet-applied messages, by path kind.",
		}, []string{"path_kind"}),
		migrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "migrations_total",
			Help:      "Total number of entity migrations completed.",
		}),
		redirectTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "redirect_table_size",
			Help:      "Number of live entries in the redirect table.",
		}),
		fatalErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fatal_errors_total",
			Help:      "Total number of fatal connection-tearing-down errors, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.inFlightPackets, m.backlogDepth, m.migrationsTotal, m.redirectTableSize, m.fatalErrorsTotal)
	return m
}

// SetInFlightPackets records the current count of unacknowledged packets.
func (m *Metrics) SetInFlightPackets(n int) {
	if m == nil {
		return
	}
	m.inFlightPackets.Set(float64(n))
}

// ObserveBacklogDepth records the current backlog depth for pathKind
// ("entity" or "component").
func (m *Metrics) ObserveBacklogDepth(pathKind string, n int) {
	if m == nil {
		return
	}
	m.backlogDepth.WithLabelValues(pathKind).Set(float64(n))
}

// IncMigrationsTotal increments the completed-migrations counter.
func (m *Metrics) IncMigrationsTotal() {
	if m == nil {
		return
	}
	m.migrationsTotal.Inc()
}

// SetRedirectTableSize records the current number of live redirect entries.
func (m *Metrics) SetRedirectTableSize(n int) {
	if m == nil {
		return
	}
	m.redirectTableSize.Set(float64(n))
}

// IncFatalErrorsTotal increments the fatal-error counter for reason.
func (m *Metrics) IncFatalErrorsTotal(reason string) {
	if m == nil {
		return
	}
	m.fatalErrorsTotal.WithLabelValues(reason).Inc()
}
