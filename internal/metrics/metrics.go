// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics holds the Prometheus collectors exported by the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rcsbridge"

// Metrics is the set of bridge collectors, registered on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	QueueDepth       prometheus.Gauge
	PollRate         prometheus.Gauge
	CommandsQueued   *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandsSent     prometheus.Counter
	PollsSent        prometheus.Counter
	MissedResponses  prometheus.Counter
	Reports          *prometheus.CounterVec
	MalformedTokens  prometheus.Counter
	PublishErrors    prometheus.Counter
	LinkReconnects   prometheus.Counter
}

// New creates and registers the bridge collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Commands waiting to be written to the thermostat.",
		}),
		PollRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_rate_seconds",
			Help:      "Configured interval between status polls.",
		}),
		CommandsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_queued_total",
			Help:      "Commands accepted from the bus, by kind.",
		}, []string{"kind"}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Bus commands that could not be translated or queued, by reason.",
		}, []string{"reason"}),
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to the thermostat link.",
		}),
		PollsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_sent_total",
			Help:      "Status requests written to the thermostat link.",
		}),
		MissedResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missed_responses_total",
			Help:      "Polls abandoned after the poll timeout.",
		}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Status and trigger messages published, by type.",
		}, []string{"type"}),
		MalformedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_tokens_total",
			Help:      "Status tokens skipped for lacking a key/value separator.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Bus publish failures.",
		}),
		LinkReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_reconnects_total",
			Help:      "Thermostat link reconnect attempts.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.QueueDepth,
		m.PollRate,
		m.CommandsQueued,
		m.CommandsRejected,
		m.CommandsSent,
		m.PollsSent,
		m.MissedResponses,
		m.Reports,
		m.MalformedTokens,
		m.PublishErrors,
		m.LinkReconnects,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
