package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/database"
)

// ErrDuplicateReference is returned by Reserve when the generated booking
// reference is already taken. Nothing was written; retry with a new one.
var ErrDuplicateReference = errors.New("booking reference already taken")

const referenceConstraint = "bookings_reference_key"

// TransitionFunc mutates a booking loaded under row lock. A non-nil job is
// inserted in the same transaction as the booking update.
type TransitionFunc func(b *entity.Booking) (*entity.SettlementJob, error)

// BookingRepository is the ledger of bookings. Reserve and Transition are the
// only writes and each runs as one transaction.
type BookingRepository interface {
	Reserve(ctx context.Context, booking *entity.Booking) error
	Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*entity.Booking, *entity.SettlementJob, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error

	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByClientID(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByClientID(ctx context.Context, clientID uuid.UUID) (int64, error)
	FindByProviderInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time, statuses []entity.BookingStatus) ([]*entity.Booking, error)
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type bookingRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewBookingRepository(db database.PgxIface, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `id, reference, client_id, provider_id, start_at, duration_minutes, end_at,
		location, address, subtotal, fee, total, status, payment_ref,
		payment_confirmed_at, accepted_at, declined_at, cancelled_at, completed_at, no_show_at,
		cancelled_by, cancel_reason, refund_amount, created_at, updated_at`

// Reserve inserts a pending booking if no active booking of the same provider
// overlaps it. The provider's advisory lock serializes concurrent reservations
// so the overlap check and the insert are one indivisible step.
func (r *bookingRepository) Reserve(ctx context.Context, booking *entity.Booking) error {
	if len(booking.Items) == 0 {
		return scheduling.NewValidationError("service_ids", "at least one service is required")
	}

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, booking.ProviderID.String()); err != nil {
			return fmt.Errorf("lock provider calendar: %w", err)
		}

		var conflictID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT id
			FROM bookings
			WHERE provider_id = $1
			  AND status = ANY($2)
			  AND start_at < $4
			  AND end_at > $3
			LIMIT 1
		`, booking.ProviderID, statusStrings(entity.ActiveBookingStatuses), booking.StartAt, booking.EndAt).Scan(&conflictID)
		switch {
		case err == nil:
			return fmt.Errorf("overlaps booking %s: %w", conflictID, scheduling.ErrSlotConflict)
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("check overlap: %w", err)
		}

		if err := insertBooking(ctx, tx, booking); err != nil {
			return err
		}
		return insertItems(ctx, tx, booking)
	})

	switch {
	case database.IsPgCode(err, database.CodeExclusionViolation):
		err = fmt.Errorf("exclusion constraint: %w", scheduling.ErrSlotConflict)
	case database.IsConstraintViolation(err, database.CodeUniqueViolation, referenceConstraint):
		r.log.Warn("Booking reference collision", zap.String("reference", booking.Reference))
		return fmt.Errorf("reference %s: %w", booking.Reference, ErrDuplicateReference)
	}
	if err != nil {
		if errors.Is(err, scheduling.ErrSlotConflict) {
			r.log.Info("Reservation lost to an overlapping booking",
				zap.String("provider_id", booking.ProviderID.String()),
				zap.Time("start_at", booking.StartAt),
				zap.Error(err),
			)
			return err
		}
		r.log.Error("Failed to reserve booking",
			zap.Error(err),
			zap.String("reference", booking.Reference),
			zap.String("provider_id", booking.ProviderID.String()),
		)
		return fmt.Errorf("reserve booking %s: %w", booking.Reference, err)
	}

	return nil
}

func insertBooking(ctx context.Context, q querier, b *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, reference, client_id, provider_id, start_at, duration_minutes, end_at,
		                      location, address, subtotal, fee, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := q.Exec(ctx, query,
		b.ID,
		b.Reference,
		b.ClientID,
		b.ProviderID,
		b.StartAt,
		b.DurationMinutes,
		b.EndAt,
		b.Location,
		b.Address,
		b.Subtotal,
		b.Fee,
		b.Total,
		b.Status,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, q querier, b *entity.Booking) error {
	query := `
		INSERT INTO booking_items (booking_id, position, service_id, name, price, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, item := range b.Items {
		if _, err := q.Exec(ctx, query,
			b.ID,
			item.Position,
			item.ServiceID,
			item.Name,
			item.Price,
			item.DurationMinutes,
		); err != nil {
			return fmt.Errorf("insert booking item %d: %w", item.Position, err)
		}
	}
	return nil
}

// Transition locks the booking row, lets fn apply the state change, then
// writes the booking and the optional settlement job before committing.
func (r *bookingRepository) Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*entity.Booking, *entity.SettlementJob, error) {
	var (
		booking *entity.Booking
		job     *entity.SettlementJob
	)

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE id = $1
			FOR UPDATE
		`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("booking %s: %w", id, scheduling.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		if job, err = fn(b); err != nil {
			return err
		}

		if err := updateState(ctx, tx, b); err != nil {
			return err
		}
		if job != nil {
			if err := insertSettlementJob(ctx, tx, job); err != nil {
				return err
			}
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	items, err := r.loadItems(ctx, r.db, []uuid.UUID{booking.ID})
	if err != nil {
		return nil, nil, err
	}
	booking.Items = items[booking.ID]

	return booking, job, nil
}

func updateState(ctx context.Context, q querier, b *entity.Booking) error {
	query := `
		UPDATE bookings
		SET status = $2, payment_confirmed_at = $3, accepted_at = $4, declined_at = $5,
		    cancelled_at = $6, completed_at = $7, no_show_at = $8, cancelled_by = $9,
		    cancel_reason = $10, refund_amount = $11, updated_at = $12
		WHERE id = $1
	`

	result, err := q.Exec(ctx, query,
		b.ID,
		b.Status,
		b.PaymentConfirmedAt,
		b.AcceptedAt,
		b.DeclinedAt,
		b.CancelledAt,
		b.CompletedAt,
		b.NoShowAt,
		b.CancelledBy,
		b.CancelReason,
		b.RefundAmount,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking %s status to %s: %w", b.ID, b.Status, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, scheduling.ErrNotFound)
	}
	return nil
}

// SetPaymentRef records the authorization of a booking still awaiting payment.
func (r *bookingRepository) SetPaymentRef(ctx context.Context, id uuid.UUID, ref string) error {
	query := `
		UPDATE bookings
		SET payment_ref = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending_payment' AND payment_ref IS NULL
	`

	result, err := r.db.Exec(ctx, query, id, ref)
	if err != nil {
		r.log.Error("Failed to set payment reference",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return fmt.Errorf("set payment ref on booking %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking %s is no longer awaiting authorization: %w", id, scheduling.ErrInvalidState)
	}
	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	items, err := r.loadItems(ctx, r.db, []uuid.UUID{b.ID})
	if err != nil {
		return nil, err
	}
	b.Items = items[b.ID]

	return b, nil
}

func (r *bookingRepository) FindByClientID(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by client ID",
			zap.Error(err),
			zap.String("client_id", clientID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by client ID %s: %w", clientID.String(), err)
	}

	return r.collect(ctx, rows)
}

func (r *bookingRepository) CountByClientID(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE client_id = $1`, clientID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count bookings by client ID",
			zap.Error(err),
			zap.String("client_id", clientID.String()),
		)
		return 0, fmt.Errorf("count bookings by client ID %s: %w", clientID.String(), err)
	}

	return count, nil
}

// FindByProviderInRange returns the provider's bookings overlapping [from, to).
// An empty statuses slice matches every status.
func (r *bookingRepository) FindByProviderInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time, statuses []entity.BookingStatus) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE provider_id = $1
		  AND start_at < $3
		  AND end_at > $2
		  AND (cardinality($4::text[]) = 0 OR status = ANY($4))
		ORDER BY start_at
	`

	rows, err := r.db.Query(ctx, query, providerID, from, to, statusStrings(statuses))
	if err != nil {
		r.log.Error("Failed to find provider bookings",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
			zap.Time("from", from),
			zap.Time("to", to),
		)
		return nil, fmt.Errorf("find bookings for provider %s: %w", providerID.String(), err)
	}

	return r.collect(ctx, rows)
}

// FindStalePending lists unpaid pending bookings created before the cutoff.
func (r *bookingRepository) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM bookings
		WHERE status = 'pending_payment'
		  AND payment_confirmed_at IS NULL
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		r.log.Error("Failed to find stale pending bookings", zap.Error(err))
		return nil, fmt.Errorf("find stale pending bookings: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale booking id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *bookingRepository) collect(ctx context.Context, rows pgx.Rows) ([]*entity.Booking, error) {
	var bookings []*entity.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}

	if len(bookings) == 0 {
		return bookings, nil
	}

	ids := make([]uuid.UUID, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	items, err := r.loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for _, b := range bookings {
		b.Items = items[b.ID]
	}
	return bookings, nil
}

func (r *bookingRepository) loadItems(ctx context.Context, q querier, bookingIDs []uuid.UUID) (map[uuid.UUID][]entity.BookingItem, error) {
	rows, err := q.Query(ctx, `
		SELECT booking_id, position, service_id, name, price, duration_minutes
		FROM booking_items
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, position
	`, bookingIDs)
	if err != nil {
		r.log.Error("Failed to load booking items", zap.Error(err))
		return nil, fmt.Errorf("load booking items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]entity.BookingItem, len(bookingIDs))
	for rows.Next() {
		var it entity.BookingItem
		if err := rows.Scan(
			&it.BookingID,
			&it.Position,
			&it.ServiceID,
			&it.Name,
			&it.Price,
			&it.DurationMinutes,
		); err != nil {
			return nil, fmt.Errorf("scan booking item: %w", err)
		}
		items[it.BookingID] = append(items[it.BookingID], it)
	}
	return items, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBooking(row scannable) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.ClientID,
		&b.ProviderID,
		&b.StartAt,
		&b.DurationMinutes,
		&b.EndAt,
		&b.Location,
		&b.Address,
		&b.Subtotal,
		&b.Fee,
		&b.Total,
		&b.Status,
		&b.PaymentRef,
		&b.PaymentConfirmedAt,
		&b.AcceptedAt,
		&b.DeclinedAt,
		&b.CancelledAt,
		&b.CompletedAt,
		&b.NoShowAt,
		&b.CancelledBy,
		&b.CancelReason,
		&b.RefundAmount,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func statusStrings(statuses []entity.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
