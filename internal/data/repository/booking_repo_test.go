package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/scheduling"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func sampleBooking() *entity.Booking {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	created := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	b := &entity.Booking{
		Reference:       "BK-7Q2M9X",
		ClientID:        uuid.New(),
		ProviderID:      uuid.New(),
		StartAt:         start,
		DurationMinutes: 45,
		EndAt:           start.Add(45 * time.Minute),
		Location:        entity.LocationSalon,
		Subtotal:        4500,
		Fee:             500,
		Total:           5000,
		Status:          entity.BookingStatusPendingPayment,
	}
	b.ID = uuid.New()
	b.CreatedAt = created
	b.UpdatedAt = created
	b.Items = []entity.BookingItem{
		{BookingID: b.ID, Position: 0, ServiceID: uuid.New(), Name: "Coupe", Price: 3000, DurationMinutes: 30},
		{BookingID: b.ID, Position: 1, ServiceID: uuid.New(), Name: "Brushing", Price: 1500, DurationMinutes: 15},
	}
	return b
}

func bookingColumnNames() []string {
	cols := strings.Split(bookingColumns, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

func bookingRow(b *entity.Booking) []any {
	return []any{
		b.ID, b.Reference, b.ClientID, b.ProviderID, b.StartAt, b.DurationMinutes, b.EndAt,
		b.Location, b.Address, b.Subtotal, b.Fee, b.Total, b.Status, b.PaymentRef,
		b.PaymentConfirmedAt, b.AcceptedAt, b.DeclinedAt, b.CancelledAt, b.CompletedAt, b.NoShowAt,
		b.CancelledBy, b.CancelReason, b.RefundAmount, b.CreatedAt, b.UpdatedAt,
	}
}

func itemRows(items []entity.BookingItem) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"booking_id", "position", "service_id", "name", "price", "duration_minutes"})
	for _, it := range items {
		rows.AddRow(it.BookingID, it.Position, it.ServiceID, it.Name, it.Price, it.DurationMinutes)
	}
	return rows
}

func expectReserveLock(mock pgxmock.PgxPoolIface, b *entity.Booking) {
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(b.ProviderID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestBookingRepository_ReserveInsertsBookingAndItems(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	expectReserveLock(mock, b)
	mock.ExpectQuery("SELECT id\\s+FROM bookings").
		WithArgs(b.ProviderID, []string{"pending_payment", "confirmed"}, b.StartAt, b.EndAt).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO booking_items").
		WithArgs(b.ID, 0, b.Items[0].ServiceID, "Coupe", int64(3000), 30).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO booking_items").
		WithArgs(b.ID, 1, b.Items[1].ServiceID, "Brushing", int64(1500), 15).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewBookingRepository(mock, zap.NewNop())
	require.NoError(t, repo.Reserve(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReserveRejectsOverlap(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	expectReserveLock(mock, b)
	mock.ExpectQuery("SELECT id\\s+FROM bookings").
		WithArgs(anyArgs(4)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	err := repo.Reserve(context.Background(), b)

	assert.ErrorIs(t, err, scheduling.ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReserveMapsExclusionViolation(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	expectReserveLock(mock, b)
	mock.ExpectQuery("SELECT id\\s+FROM bookings").
		WithArgs(anyArgs(4)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	err := repo.Reserve(context.Background(), b)

	assert.ErrorIs(t, err, scheduling.ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReserveReferenceCollision(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	expectReserveLock(mock, b)
	mock.ExpectQuery("SELECT id\\s+FROM bookings").
		WithArgs(anyArgs(4)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "bookings_reference_key"})
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	err := repo.Reserve(context.Background(), b)

	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.NotErrorIs(t, err, scheduling.ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReserveOtherUniqueViolationIsNotACollision(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	expectReserveLock(mock, b)
	mock.ExpectQuery("SELECT id\\s+FROM bookings").
		WithArgs(anyArgs(4)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "bookings_pkey"})
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	err := repo.Reserve(context.Background(), b)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateReference)
	assert.Contains(t, err.Error(), b.Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReserveWrapsOtherFailures(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	expectReserveLock(mock, b)
	mock.ExpectQuery("SELECT id\\s+FROM bookings").
		WithArgs(anyArgs(4)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	err := repo.Reserve(context.Background(), b)

	require.Error(t, err)
	assert.NotErrorIs(t, err, scheduling.ErrSlotConflict)
	assert.Contains(t, err.Error(), b.Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ReserveNeedsItems(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()
	b.Items = nil

	repo := NewBookingRepository(mock, zap.NewNop())
	assert.ErrorIs(t, repo.Reserve(context.Background(), b), scheduling.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_TransitionWritesStateAndJob(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()
	ref := "pi_123"
	b.PaymentRef = &ref
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows(bookingColumnNames()).AddRow(bookingRow(b)...))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(append([]any{b.ID, entity.BookingStatusCancelled}, anyArgs(10)...)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO settlement_jobs").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM booking_items").
		WithArgs([]uuid.UUID{b.ID}).
		WillReturnRows(itemRows(b.Items))

	repo := NewBookingRepository(mock, zap.NewNop())
	updated, job, err := repo.Transition(context.Background(), b.ID, func(locked *entity.Booking) (*entity.SettlementJob, error) {
		assert.Equal(t, entity.BookingStatusPendingPayment, locked.Status)
		locked.Status = entity.BookingStatusCancelled
		locked.CancelledAt = &now
		locked.UpdatedAt = now

		j := &entity.SettlementJob{BookingID: locked.ID, Kind: entity.SettlementVoid, PaymentRef: ref, Amount: locked.Total, NextAttemptAt: now}
		j.ID = uuid.New()
		j.CreatedAt = now
		return j, nil
	})
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusCancelled, updated.Status)
	assert.Len(t, updated.Items, 2)
	require.NotNil(t, job)
	assert.Equal(t, entity.SettlementVoid, job.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_TransitionRollsBackOnRefusal(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows(bookingColumnNames()).AddRow(bookingRow(b)...))
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	_, _, err := repo.Transition(context.Background(), b.ID, func(*entity.Booking) (*entity.SettlementJob, error) {
		return nil, scheduling.ErrInvalidState
	})

	assert.ErrorIs(t, err, scheduling.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_TransitionUnknownBooking(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	repo := NewBookingRepository(mock, zap.NewNop())
	_, _, err := repo.Transition(context.Background(), id, func(*entity.Booking) (*entity.SettlementJob, error) {
		t.Fatal("transition func must not run for a missing booking")
		return nil, nil
	})

	assert.ErrorIs(t, err, scheduling.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_SetPaymentRef(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()

	mock.ExpectExec("SET payment_ref").
		WithArgs(id, "pi_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET payment_ref").
		WithArgs(id, "pi_2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewBookingRepository(mock, zap.NewNop())
	require.NoError(t, repo.SetPaymentRef(context.Background(), id, "pi_1"))
	assert.ErrorIs(t, repo.SetPaymentRef(context.Background(), id, "pi_2"), scheduling.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_FindByIDMissing(t *testing.T) {
	mock := newMockPool(t)
	id := uuid.New()

	mock.ExpectQuery("FROM bookings").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	repo := NewBookingRepository(mock, zap.NewNop())
	b, err := repo.FindByID(context.Background(), id)

	require.NoError(t, err)
	assert.Nil(t, b)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_FindByIDLoadsItems(t *testing.T) {
	mock := newMockPool(t)
	b := sampleBooking()

	mock.ExpectQuery("FROM bookings").
		WithArgs(b.ID).
		WillReturnRows(pgxmock.NewRows(bookingColumnNames()).AddRow(bookingRow(b)...))
	mock.ExpectQuery("FROM booking_items").
		WithArgs([]uuid.UUID{b.ID}).
		WillReturnRows(itemRows(b.Items))

	repo := NewBookingRepository(mock, zap.NewNop())
	got, err := repo.FindByID(context.Background(), b.ID)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.Reference, got.Reference)
	assert.Equal(t, b.Items, got.Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_FindStalePending(t *testing.T) {
	mock := newMockPool(t)
	cutoff := time.Date(2026, 3, 9, 9, 45, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectQuery("status = 'pending_payment'").
		WithArgs(cutoff, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(ids[0]).AddRow(ids[1]))

	repo := NewBookingRepository(mock, zap.NewNop())
	got, err := repo.FindStalePending(context.Background(), cutoff, 100)

	require.NoError(t, err)
	assert.Equal(t, ids, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
