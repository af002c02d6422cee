package usecase

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/cache"
	"coiffeur-booking/pkg/metrics"
	"coiffeur-booking/pkg/notify"
	"coiffeur-booking/pkg/payment"
	"coiffeur-booking/pkg/utils"
)

// Clock returns the current instant. Tests pin it.
type Clock func() time.Time

// Deps are the collaborators built by main. Cache, Metrics and Now may be nil.
type Deps struct {
	Gateway  payment.Gateway
	Cache    *cache.AvailabilityCache
	Notifier notify.Dispatcher
	Metrics  *metrics.BookingMetrics
	Now      Clock
}

type Service struct {
	Availability AvailabilityService
	Booking      BookingService
	Payment      PaymentCoordinator
	Sweep        SweepService
}

func NewService(repo *repository.Repository, deps Deps, config *utils.Config, log *zap.Logger) (*Service, error) {
	grid, err := scheduling.NewGrid(scheduling.GridSpec{
		Timezone:   config.Schedule.Timezone,
		Open:       config.Schedule.Open,
		Close:      config.Schedule.Close,
		StepMins:   config.Schedule.StepMins,
		BreakStart: config.Schedule.BreakStart,
		BreakEnd:   config.Schedule.BreakEnd,
		LeadMins:   config.Schedule.LeadMins,
	})
	if err != nil {
		return nil, fmt.Errorf("slot grid: %w", err)
	}

	policy, err := policyFromConfig(config.Booking)
	if err != nil {
		return nil, err
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogDispatcher(log)
	}

	payments := NewPaymentCoordinator(repo, deps.Gateway, PaymentOptions{
		Currency:    config.Payment.Currency,
		Timeout:     config.Payment.Timeout,
		MaxAttempts: config.Worker.SettlementMaxTry,
		Batch:       config.Worker.SettlementBatch,
	}, deps.Metrics, deps.Now, log)

	availability := NewAvailabilityService(repo, grid, deps.Cache, deps.Metrics, deps.Now, log)
	booking := NewBookingService(repo, BookingDeps{
		Grid:      grid,
		Lifecycle: scheduling.NewLifecycle(policy),
		Payments:  payments,
		Cache:     deps.Cache,
		Notifier:  deps.Notifier,
		Metrics:   deps.Metrics,
		Now:       deps.Now,
	}, log)

	return &Service{
		Availability: availability,
		Booking:      booking,
		Payment:      payments,
		Sweep:        NewSweepService(repo, booking, config.Booking.PendingTTL, deps.Metrics, deps.Now, log),
	}, nil
}

func policyFromConfig(config utils.BookingConfig) (scheduling.Policy, error) {
	confirmation, err := scheduling.ParseConfirmationPolicy(config.ConfirmationPolicy)
	if err != nil {
		return scheduling.Policy{}, err
	}

	policy := scheduling.DefaultPolicy()
	policy.Confirmation = confirmation
	policy.Refund.FullRefundWindow = time.Duration(config.FullRefundHours) * time.Hour
	policy.Refund.LateRefundPercent = config.LateRefundPercent
	policy.Refund.BlockLateCancellation = config.BlockLateCancellation
	policy.NoShowChargePercent = config.NoShowChargePercent
	return policy, nil
}
