// Package monitoring exposes Prometheus metrics for the Overpass query
// subsystem.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// ServiceName labels all metrics
	ServiceName = "overpassmcp"
)

var (
	// Query metrics
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overpassmcp_queries_total",
			Help: "Total number of Overpass queries executed",
		},
		[]string{"output", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overpassmcp_query_duration_seconds",
			Help:    "Overpass query duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"output"},
	)

	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overpassmcp_query_retries_total",
			Help: "Total number of retried query attempts",
		},
	)

	// Slot gating metrics
	SlotWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "overpassmcp_slot_wait_duration_seconds",
			Help:    "Time spent waiting for an Overpass API slot",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		},
	)

	SlotTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overpassmcp_slot_timeouts_total",
			Help: "Total number of slot waits that hit the max-wait boundary",
		},
	)

	// Decoder metrics
	ElementsDecodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overpassmcp_elements_decoded_total",
			Help: "Total number of elements decoded into geometry records",
		},
	)

	ElementsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overpassmcp_elements_dropped_total",
			Help: "Total number of elements dropped during geometry decoding",
		},
	)

	// MCP tool metrics
	ToolRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overpassmcp_tool_requests_total",
			Help: "Total number of MCP tool requests processed",
		},
		[]string{"tool", "status"},
	)

	ToolRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overpassmcp_tool_request_duration_seconds",
			Help:    "MCP tool request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"tool"},
	)
)

// Helper functions for common metric updates

// RecordQuery records one terminal query outcome
func RecordQuery(output string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	QueriesTotal.WithLabelValues(output, status).Inc()
	if duration > 0 {
		QueryDuration.WithLabelValues(output).Observe(duration.Seconds())
	}
}

// RecordRetry records one retried attempt
func RecordRetry() {
	RetriesTotal.Inc()
}

// RecordSlotWait records a completed slot wait
func RecordSlotWait(duration time.Duration) {
	SlotWaitDuration.Observe(duration.Seconds())
}

// RecordSlotTimeout records a slot wait that hit the boundary
func RecordSlotTimeout() {
	SlotTimeoutsTotal.Inc()
}

// RecordDecode records the outcome of one decode batch
func RecordDecode(decoded, dropped int) {
	ElementsDecodedTotal.Add(float64(decoded))
	ElementsDroppedTotal.Add(float64(dropped))
}

// RecordToolRequest records one MCP tool invocation
func RecordToolRequest(tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ToolRequestsTotal.WithLabelValues(tool, status).Inc()
	ToolRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
