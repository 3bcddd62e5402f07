package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for scheduling flows. All methods
// are safe on a nil receiver.
type Metrics struct {
	slotQueries      *prometheus.CounterVec
	bookings         *prometheus.CounterVec
	cancellations    prometheus.Counter
	requestDurations *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisync",
			Subsystem: "slots",
			Name:      "queries_total",
			Help:      "Availability queries by outcome",
		}, []string{"result"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medisync",
			Subsystem: "appointments",
			Name:      "booked_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medisync",
			Subsystem: "appointments",
			Name:      "cancelled_total",
			Help:      "Appointments cancelled",
		}),
		requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medisync",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotQueries, m.bookings, m.cancellations, m.requestDurations)
	return m
}

// ObserveSlotQuery records an availability query; result is "bookable",
// "not_bookable" or "error".
func (m *Metrics) ObserveSlotQuery(result string) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(result).Inc()
}

// ObserveBooking records a booking attempt; result is "created", "conflict",
// "rejected" or "error".
func (m *Metrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDurations.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
