// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// queueMetrics mirrors the shape of the teacher's walMetrics: one
// prometheus.Registerer wired in at construction, a small set of counters
// and gauges promauto-registers immediately, and call sites that just
// Inc()/Add()/Set() without ever checking for nil.
type queueMetrics struct {
	pushesTotal          prometheus.Counter
	popsTotal            *prometheus.CounterVec
	popWithAckTotal      *prometheus.CounterVec
	acknowledgeTotal     *prometheus.CounterVec
	segmentsOffloaded    prometheus.Counter
	segmentsLoaded       prometheus.Counter
	offloadFailuresTotal prometheus.Counter
	loadFailuresTotal    prometheus.Counter
	lockExpiriesTotal    prometheus.Counter
	desyncsTotal         prometheus.Counter
	activeLock           prometheus.Gauge
	queueDepth           *prometheus.GaugeVec
}

func newQueueMetrics(reg prometheus.Registerer) *queueMetrics {
	return &queueMetrics{
		pushesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_pushes_total",
			Help: "pqactor_pushes_total counts successful Push calls.",
		}),
		popsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pqactor_pops_total",
			Help: "pqactor_pops_total counts Pop calls by result: hit, empty, or locked.",
		}, []string{"result"}),
		popWithAckTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pqactor_pop_with_ack_total",
			Help: "pqactor_pop_with_ack_total counts PopWithAck calls by result: locked, empty, or locked_new.",
		}, []string{"result"}),
		acknowledgeTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pqactor_acknowledge_total",
			Help: "pqactor_acknowledge_total counts Acknowledge calls by result code.",
		}, []string{"result"}),
		segmentsOffloaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_segments_offloaded_total",
			Help: "pqactor_segments_offloaded_total counts segments moved hot to cold.",
		}),
		segmentsLoaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_segments_loaded_total",
			Help: "pqactor_segments_loaded_total counts segments promoted cold to hot.",
		}),
		offloadFailuresTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_offload_failures_total",
			Help: "pqactor_offload_failures_total counts swallowed offload failures (degrades to hot-only).",
		}),
		loadFailuresTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_load_failures_total",
			Help: "pqactor_load_failures_total counts surfaced load-scan failures (ColdStoreUnavailable).",
		}),
		lockExpiriesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_lock_expiries_total",
			Help: "pqactor_lock_expiries_total counts lock recoveries triggered by expiry.",
		}),
		desyncsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pqactor_desyncs_total",
			Help: "pqactor_desyncs_total counts self-healed count/segment desyncs observed during Pop.",
		}),
		activeLock: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pqactor_active_lock",
			Help: "pqactor_active_lock is 1 while this actor has an outstanding unacknowledged lock, else 0.",
		}),
		queueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "pqactor_queue_depth",
			Help: "pqactor_queue_depth is the current item count per priority.",
		}, []string{"priority"}),
	}
}
