// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics counts what one CLI invocation did and can write the
// result in the Prometheus text format, for node_exporter's textfile
// collector or any scraper that reads files.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/session"
)

// Metrics holds all Prometheus metrics for a run.
type Metrics struct {
	registry *prometheus.Registry

	ModelCalls          *prometheus.CounterVec
	IntentRounds        prometheus.Counter
	OptimizeAttempts    *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	Sessions            *prometheus.CounterVec
	DiagnosticsDuration prometheus.Histogram
	SessionDuration     prometheus.Histogram
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "precinct_model_calls_total",
			Help: "Language model calls by component and result kind",
		}, []string{"component", "result"}),
		IntentRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "precinct_intent_corrections_total",
			Help: "Intent corrections received",
		}),
		OptimizeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "precinct_optimize_attempts_total",
			Help: "Optimization attempts by validity",
		}, []string{"valid"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "precinct_state_transitions_total",
			Help: "Conversation state transitions",
		}, []string{"from", "to"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "precinct_sessions_total",
			Help: "Finished sessions by outcome and error kind",
		}, []string{"outcome", "kind"}),
		DiagnosticsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "precinct_diagnostics_duration_seconds",
			Help:    "Wall-clock time of the EXPLAIN ANALYZE run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "precinct_session_duration_seconds",
			Help:    "Wall-clock time of a session including time spent waiting for replies",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	m.registry.MustRegister(
		m.ModelCalls,
		m.IntentRounds,
		m.OptimizeAttempts,
		m.Transitions,
		m.Sessions,
		m.DiagnosticsDuration,
		m.SessionDuration,
	)
	return m
}

// ObserveModelCall records one model call attempt. It matches
// llm.CallObserver.
func (m *Metrics) ObserveModelCall(component string, kind apperrors.Kind) {
	result := string(kind)
	if result == "" {
		result = "ok"
	}
	m.ModelCalls.WithLabelValues(component, result).Inc()
}

// ObserveOptimizeAttempt records one optimizer attempt.
func (m *Metrics) ObserveOptimizeAttempt(valid bool) {
	label := "false"
	if valid {
		label = "true"
	}
	m.OptimizeAttempts.WithLabelValues(label).Inc()
}

// Transition implements session.Observer.
func (m *Metrics) Transition(from, to session.State, ev session.Event) {
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
	if ev == session.EventCorrection {
		m.IntentRounds.Inc()
	}
}

// DiagnosticsDone implements session.Observer.
func (m *Metrics) DiagnosticsDone(d time.Duration) {
	m.DiagnosticsDuration.Observe(d.Seconds())
}

// Finished implements session.Observer.
func (m *Metrics) Finished(s *session.Session) {
	m.Sessions.WithLabelValues(string(s.Outcome), string(s.ErrorKind())).Inc()
	m.SessionDuration.Observe(s.Finished.Sub(s.Started).Seconds())
}

// WriteFile writes every metric to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
