package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/scheduling"
)

func TestExpireStalePending(t *testing.T) {
	env := newTestEnv(t)
	unpaid := env.book(t, newClient(), "10:00", env.coupe)
	paid := env.book(t, newClient(), "14:00", env.coupe)
	env.confirm(t, paid)

	env.clock.Advance(20 * time.Minute)
	n, err := env.sweep.ExpireStalePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "still inside the payment window")

	env.clock.Advance(11 * time.Minute)
	n, err = env.sweep.ExpireStalePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired := env.ledger.get(unpaid.ID)
	assert.Equal(t, entity.BookingStatusCancelled, expired.Status)
	require.NotNil(t, expired.CancelReason)
	assert.Equal(t, scheduling.ReasonPaymentTimeout, *expired.CancelReason)
	_, voided := env.gateway.Captured(*unpaid.PaymentRef)
	assert.True(t, voided)

	assert.Equal(t, entity.BookingStatusConfirmed, env.ledger.get(paid.ID).Status)

	n, err = env.sweep.ExpireStalePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanSessions(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.expired = 3

	n, err := env.sweep.CleanSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
