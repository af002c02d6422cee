package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
// A nil *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	reservations     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	availabilityHits *prometheus.CounterVec
	sweptBookings    prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coiffeur",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coiffeur",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking transitions by action and outcome",
		}, []string{"action", "outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coiffeur",
			Subsystem: "payment",
			Name:      "settlements_total",
			Help:      "Settlement executions by kind and status",
		}, []string{"kind", "status"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coiffeur",
			Subsystem: "payment",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of payment gateway calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		availabilityHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coiffeur",
			Subsystem: "availability",
			Name:      "cache_lookups_total",
			Help:      "Availability cache lookups by result",
		}, []string{"result"}),
		sweptBookings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coiffeur",
			Subsystem: "booking",
			Name:      "expired_pending_total",
			Help:      "Unpaid bookings cancelled by the sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservations, m.transitions, m.settlements, m.gatewayLatency, m.availabilityHits, m.sweptBookings)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *BookingMetrics) ObserveSettlement(kind, status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind, status).Inc()
}

func (m *BookingMetrics) ObserveGatewayLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.availabilityHits.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveSwept(n int) {
	if m == nil {
		return
	}
	m.sweptBookings.Add(float64(n))
}
