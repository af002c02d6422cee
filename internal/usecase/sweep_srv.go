package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/metrics"
)

const sweepBatch = 100

// SweepService holds the periodic housekeeping jobs.
type SweepService interface {
	// ExpireStalePending cancels unpaid bookings older than the pending TTL
	// and returns how many it cancelled.
	ExpireStalePending(ctx context.Context) (int, error)
	CleanSessions(ctx context.Context) (int64, error)
}

type sweepService struct {
	repo       *repository.Repository
	booking    BookingService
	pendingTTL time.Duration
	metrics    *metrics.BookingMetrics
	now        Clock
	log        *zap.Logger
}

func NewSweepService(repo *repository.Repository, booking BookingService, pendingTTL time.Duration, m *metrics.BookingMetrics, now Clock, log *zap.Logger) SweepService {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Minute
	}
	return &sweepService{
		repo:       repo,
		booking:    booking,
		pendingTTL: pendingTTL,
		metrics:    m,
		now:        now,
		log:        log.With(zap.String("service", "sweep")),
	}
}

func (s *sweepService) ExpireStalePending(ctx context.Context) (int, error) {
	ids, err := s.repo.Booking.FindStalePending(ctx, s.now().Add(-s.pendingTTL), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("find stale bookings: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		err := s.booking.ExpireBooking(ctx, id)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, scheduling.ErrInvalidState), errors.Is(err, scheduling.ErrNotFound):
			// paid or cancelled since it was listed
		default:
			s.log.Error("Failed to expire booking", zap.Error(err), zap.String("booking_id", id.String()))
		}
	}

	s.metrics.ObserveSwept(expired)
	if expired > 0 {
		s.log.Info("Expired unpaid bookings", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *sweepService) CleanSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.Session.CleanExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Cleaned expired sessions", zap.Int64("count", n))
	}
	return n, nil
}
