package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReservation("reserved")
	m.ObserveReservation("conflict")
	m.ObserveTransition("cancel", "applied")
	m.ObserveSettlement("void", "done")
	m.ObserveGatewayLatency("authorize", 0.2)
	m.ObserveCacheLookup(true)
	m.ObserveSwept(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]int)
	for _, f := range families {
		byName[f.GetName()] = len(f.GetMetric())
	}
	assert.Equal(t, 2, byName["coiffeur_booking_reservations_total"])
	assert.Equal(t, 1, byName["coiffeur_booking_transitions_total"])
	assert.Equal(t, 1, byName["coiffeur_payment_settlements_total"])
	assert.Equal(t, 1, byName["coiffeur_payment_gateway_latency_seconds"])
	assert.Equal(t, 1, byName["coiffeur_availability_cache_lookups_total"])
	assert.Equal(t, 1, byName["coiffeur_booking_expired_pending_total"])
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveReservation("reserved")
	m.ObserveTransition("accept", "applied")
	m.ObserveSettlement("capture", "failed")
	m.ObserveGatewayLatency("capture", 0.1)
	m.ObserveCacheLookup(false)
	m.ObserveSwept(1)
}
