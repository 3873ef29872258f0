package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ==================== Charging Metrics ====================

	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_transactions",
		Help: "Number of active charging transactions",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_energy_delivered_wh_total",
		Help: "Total energy delivered in watt-hours",
	})

	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_transactions_total",
		Help: "Total transactions by terminal status",
	}, []string{"status"})

	ChargingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csms_charging_duration_seconds",
		Help:    "Duration of charging sessions in seconds",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400},
	})

	// ==================== OCPP Metrics ====================

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "Total OCPP messages",
	}, []string{"action", "direction"})

	OCPPConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_ocpp_connections_active",
		Help: "Number of active OCPP WebSocket sessions",
	})

	// ==================== Station Metrics ====================

	StationsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csms_stations_total",
		Help: "Total stations by operational status",
	}, []string{"status"})

	StationLastHeartbeat = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csms_station_last_heartbeat_timestamp",
		Help: "Unix timestamp of a station's last heartbeat",
	}, []string{"station_id"})

	// ==================== Infrastructure Metrics ====================

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	DatabaseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_database_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "table"})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_cache_hits_total",
		Help: "Total cache hits and misses",
	}, []string{"result"})

	MessageQueueMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_mq_messages_total",
		Help: "Total message queue messages",
	}, []string{"topic", "status"})
)

// RecordTransactionStarted increments metrics when a transaction starts.
func RecordTransactionStarted() {
	ActiveChargingSessions.Inc()
	TransactionsTotal.WithLabelValues("started").Inc()
}

// RecordTransactionCompleted updates metrics when a transaction completes.
func RecordTransactionCompleted(energyWh float64, durationSeconds float64) {
	ActiveChargingSessions.Dec()
	TransactionsTotal.WithLabelValues("completed").Inc()
	EnergyDeliveredTotal.Add(energyWh)
	ChargingDuration.Observe(durationSeconds)
}

// RecordOCPPMessage records an OCPP message metric.
func RecordOCPPMessage(action string, inbound bool) {
	direction := "outbound"
	if inbound {
		direction = "inbound"
	}
	OCPPMessagesTotal.WithLabelValues(action, direction).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	statusStr := fmt.Sprintf("%d", status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(durationSeconds)
}

// RecordCacheAccess records a cache access metric.
func RecordCacheAccess(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheHitsTotal.WithLabelValues(result).Inc()
}
