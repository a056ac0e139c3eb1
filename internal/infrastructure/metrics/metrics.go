// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conveyor"

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Garment scans by result",
	}, []string{"result"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Latency of the scan ledger transaction",
		Buckets:   prometheus.DefBuckets,
	})

	TicketsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_completed_total",
		Help:      "Tickets whose last garment was scanned",
	})

	SlotTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slot_transitions_total",
		Help:      "Committed slot state changes by new state",
	}, []string{"state"})

	SlotsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "slots",
		Help:      "Slots currently in each state",
	}, []string{"state"})

	ItemsOnConveyor = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "items_on_conveyor",
		Help:      "Garments currently hanging on the conveyor",
	})

	DeviceOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "device_op_duration_seconds",
		Help:      "Round trip of device reads and writes",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"device", "op"})

	DeviceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_errors_total",
		Help:      "Failed device operations",
	}, []string{"device", "op"})

	DeviceConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_connected",
		Help:      "1 while the device link is up",
	}, []string{"device"})

	HangerDetected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hanger_detected",
		Help:      "Last hanger sensor reading",
	})

	SpotLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spot_lines_total",
		Help:      "POS lines by outcome",
	}, []string{"outcome"})

	SpotBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spot_batches_total",
		Help:      "POS batches by commit result",
	}, []string{"committed"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped because a consumer was full",
	}, []string{"sink"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected WebSocket clients",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
