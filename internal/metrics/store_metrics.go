package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label result.
const (
	ResultOK = "ok"
)

// StoreMetrics содержит метрики операций над заказами.
type StoreMetrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	ingested        *prometheus.CounterVec
}

// NewStoreMetrics создаёт метрики в DefaultRegisterer.
func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStoreMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StoreMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_operations_total",
			Help: "Total number of order operations by outcome",
		}, []string{"operation", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orders_operations_in_flight",
			Help: "Number of order operations currently executing",
		}),
		eventsPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_events_published_total",
			Help: "Total number of order events published to Kafka",
		}, []string{"event_type", "result"}),
		ingested: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_ingested_total",
			Help: "Total number of inbound order messages processed",
		}, []string{"result"}),
	}
}

// StartOperation отмечает начало операции и возвращает функцию завершения,
// которая записывает длительность и результат.
func (m *StoreMetrics) StartOperation(operation string) func(result string) {
	if m == nil {
		return func(string) {}
	}

	started := time.Now()
	m.inFlight.Inc()
	return func(result string) {
		m.inFlight.Dec()
		m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
		m.operations.WithLabelValues(operation, result).Inc()
	}
}

// RecordEventPublished учитывает попытку публикации события.
func (m *StoreMetrics) RecordEventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

// RecordIngested учитывает обработанное входящее сообщение (created, duplicate, rejected, failed).
func (m *StoreMetrics) RecordIngested(result string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(result).Inc()
}
