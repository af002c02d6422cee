package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/pkg/database"
)

// SettlementRepository is the queue of payment calls owed after transitions.
type SettlementRepository interface {
	Claim(ctx context.Context, now time.Time, lease time.Duration, maxAttempts, limit int) ([]*entity.SettlementJob, error)
	MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, nextAttemptAt time.Time) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.SettlementJob, error)
}

type settlementRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewSettlementRepository(db database.PgxIface, log *zap.Logger) SettlementRepository {
	return &settlementRepository{
		db:  db,
		log: log.With(zap.String("repository", "settlement")),
	}
}

const settlementColumns = `id, booking_id, kind, payment_ref, amount, attempts, last_error, next_attempt_at, done_at, created_at`

func insertSettlementJob(ctx context.Context, q querier, job *entity.SettlementJob) error {
	query := `
		INSERT INTO settlement_jobs (id, booking_id, kind, payment_ref, amount, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		job.ID,
		job.BookingID,
		job.Kind,
		job.PaymentRef,
		job.Amount,
		job.NextAttemptAt,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s settlement for booking %s: %w", job.Kind, job.BookingID, err)
	}
	return nil
}

// Claim leases up to limit due jobs by pushing their next attempt past the
// lease, so concurrent workers never pick the same job.
func (r *settlementRepository) Claim(ctx context.Context, now time.Time, lease time.Duration, maxAttempts, limit int) ([]*entity.SettlementJob, error) {
	query := `
		UPDATE settlement_jobs
		SET next_attempt_at = $2
		WHERE id IN (
			SELECT id
			FROM settlement_jobs
			WHERE done_at IS NULL
			  AND next_attempt_at <= $1
			  AND attempts < $3
			ORDER BY next_attempt_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + settlementColumns

	rows, err := r.db.Query(ctx, query, now, now.Add(lease), maxAttempts, limit)
	if err != nil {
		r.log.Error("Failed to claim settlement jobs", zap.Error(err))
		return nil, fmt.Errorf("claim settlement jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*entity.SettlementJob
	for rows.Next() {
		var job entity.SettlementJob
		if err := rows.Scan(
			&job.ID,
			&job.BookingID,
			&job.Kind,
			&job.PaymentRef,
			&job.Amount,
			&job.Attempts,
			&job.LastError,
			&job.NextAttemptAt,
			&job.DoneAt,
			&job.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

func (r *settlementRepository) MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE settlement_jobs
		SET done_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $1 AND done_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		r.log.Error("Failed to mark settlement done",
			zap.Error(err),
			zap.String("job_id", id.String()),
		)
		return fmt.Errorf("mark settlement %s done: %w", id, err)
	}
	return nil
}

func (r *settlementRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string, nextAttemptAt time.Time) error {
	query := `
		UPDATE settlement_jobs
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1 AND done_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, id, cause, nextAttemptAt); err != nil {
		r.log.Error("Failed to record settlement failure",
			zap.Error(err),
			zap.String("job_id", id.String()),
		)
		return fmt.Errorf("mark settlement %s failed: %w", id, err)
	}
	return nil
}

func (r *settlementRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.SettlementJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_jobs
		WHERE booking_id = $1
		ORDER BY created_at
	`, bookingID)
	if err != nil {
		r.log.Error("Failed to find settlements by booking",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("find settlements for booking %s: %w", bookingID, err)
	}
	defer rows.Close()

	var jobs []*entity.SettlementJob
	for rows.Next() {
		var job entity.SettlementJob
		if err := rows.Scan(
			&job.ID,
			&job.BookingID,
			&job.Kind,
			&job.PaymentRef,
			&job.Amount,
			&job.Attempts,
			&job.LastError,
			&job.NextAttemptAt,
			&job.DoneAt,
			&job.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}
