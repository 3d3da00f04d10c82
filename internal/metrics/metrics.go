// Package metrics defines the Prometheus collectors exported by pvwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pvwatch",
			Name:      "ticks_total",
			Help:      "Poll ticks by outcome.",
		},
		[]string{"outcome"},
	)

	ProbeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pvwatch",
			Name:      "probe_duration_seconds",
			Help:      "Latency of remote change-token probes.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	Appended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pvwatch",
			Name:      "readings_appended_total",
			Help:      "Readings persisted to the time series log.",
		},
	)

	LastIngest = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pvwatch",
			Name:      "last_ingest_timestamp_seconds",
			Help:      "Unix time of the last persisted reading.",
		},
	)

	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pvwatch",
			Name:      "http_requests_total",
			Help:      "Query API requests by route and status.",
		},
		[]string{"route", "status"},
	)

	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pvwatch",
			Name:      "http_request_duration_seconds",
			Help:      "Query API latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Ticks, ProbeLatency, Appended, LastIngest, Requests, Latency} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
