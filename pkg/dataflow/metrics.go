package dataflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	// submitTotal counts submitted batches by root and result.
	submitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflow_submit_total",
		Help: "Total change batches submitted by root and result",
	}, []string{"root", "result"})

	// propagationDuration tracks the time from root entry to the last leaf delivery.
	propagationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dflow_propagation_duration_seconds",
		Help:    "Propagation duration of a submitted batch in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	}, []string{"root"})

	unmatchedDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflow_unmatched_deletions_total",
		Help: "Deletions of rows or keys absent from the operator state, by operator kind",
	}, []string{"kind"})

	// sinkDeliveries counts envelopes delivered to sinks by leaf and result.
	sinkDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflow_sink_deliveries_total",
		Help: "Total envelopes delivered to sinks by leaf and result",
	}, []string{"leaf", "result"})

	attachedSinks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dflow_attached_sinks",
		Help: "Number of sinks currently attached to a leaf",
	}, []string{"leaf"})
)
