// Package metrics defines the Prometheus collectors exported by s4.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s4_queries_executed_total",
			Help: "Total number of SQL statements executed",
		},
		[]string{"status"},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s4_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
	)

	RequestsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s4_requests_throttled_total",
			Help: "Total number of requests rejected by rate limiting",
		},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "s4_query_duration_seconds",
			Help:    "Time taken to execute SQL statements",
			Buckets: prometheus.DefBuckets,
		},
	)
)
