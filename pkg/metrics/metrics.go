package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Doctor directory metrics
	DoctorLookups       *prometheus.CounterVec
	DoctorLookupLatency prometheus.Histogram

	// Domain event metrics
	EventsPublished *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// New creates the application metrics and registers them on reg when it is
// not nil.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		DoctorLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doctor_lookups_total",
			Help:      "Doctor directory lookups by outcome",
		}, []string{"outcome"}),
		DoctorLookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "doctor_lookup_duration_seconds",
			Help:      "Duration of doctor directory calls",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Patient events handed to the broker",
		}, []string{"event_type", "status"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Patient events read back from the broker",
		}, []string{"event_type", "status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DatabaseOperations,
			m.DatabaseLatency,
			m.DoctorLookups,
			m.DoctorLookupLatency,
			m.EventsPublished,
			m.EventsConsumed,
		)
	}
	return m
}

// ObserveDB records one database operation. Safe on a nil receiver.
func (m *Metrics) ObserveDB(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseOperations.WithLabelValues(operation, status).Inc()
	m.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveDoctorLookup records one doctor directory call. Safe on a nil receiver.
func (m *Metrics) ObserveDoctorLookup(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.DoctorLookups.WithLabelValues(outcome).Inc()
	if !start.IsZero() {
		m.DoctorLookupLatency.Observe(time.Since(start).Seconds())
	}
}

// ObserveEvent records one publish attempt. Safe on a nil receiver.
func (m *Metrics) ObserveEvent(eventType string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}

// ObserveConsumed records one received event. Safe on a nil receiver.
func (m *Metrics) ObserveConsumed(eventType string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EventsConsumed.WithLabelValues(eventType, status).Inc()
}
