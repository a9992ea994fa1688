// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "torrentdash"

// Poll outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
	OutcomeIdle    = "idle"
)

// Metrics owns a private registry so tests can create as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	polls           *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	trackedTorrents prometheus.Gauge
	trackedPeers    prometheus.Gauge
	lifecycle       *prometheus.CounterVec
	operations      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll chain ticks by chain and outcome",
		}, []string{"chain", "outcome"}),
		pollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent fetching and applying a snapshot",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"chain"}),
		trackedTorrents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_torrents",
			Help:      "Torrents currently held in the local store",
		}),
		trackedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_peers",
			Help:      "Peers currently held for the focused torrent",
		}),
		lifecycle: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events dispatched to views by kind",
		}, []string{"kind"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "User operations by name and outcome",
		}, []string{"operation", "outcome"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePoll(chain, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(chain, outcome).Inc()
	if outcome != OutcomeIdle {
		m.pollDuration.WithLabelValues(chain).Observe(took.Seconds())
	}
}

func (m *Metrics) SetTracked(torrents, peers int) {
	if m == nil {
		return
	}
	m.trackedTorrents.Set(float64(torrents))
	m.trackedPeers.Set(float64(peers))
}

func (m *Metrics) CountEvent(kind string) {
	if m == nil {
		return
	}
	m.lifecycle.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}
