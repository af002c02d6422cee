package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/dto/request"
	"coiffeur-booking/internal/dto/response"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/cache"
	"coiffeur-booking/pkg/metrics"
	"coiffeur-booking/pkg/utils"
)

type AvailabilityService interface {
	GetAvailableSlots(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error)
	ListProviderServices(ctx context.Context, providerID string) ([]response.ServiceResponse, error)
}

type availabilityService struct {
	repo    *repository.Repository
	grid    scheduling.Grid
	cache   *cache.AvailabilityCache
	metrics *metrics.BookingMetrics
	now     Clock
	log     *zap.Logger
}

func NewAvailabilityService(repo *repository.Repository, grid scheduling.Grid, cache *cache.AvailabilityCache, m *metrics.BookingMetrics, now Clock, log *zap.Logger) AvailabilityService {
	return &availabilityService{
		repo:    repo,
		grid:    grid,
		cache:   cache,
		metrics: m,
		now:     now,
		log:     log.With(zap.String("service", "availability")),
	}
}

func (s *availabilityService) GetAvailableSlots(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Availability validation failed", zap.Any("errors", errs))
		return nil, &scheduling.ValidationError{Fields: errs}
	}

	provider, err := s.activeProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	duration := req.Duration
	if len(req.ServiceIDs) > 0 {
		services, err := resolveServices(ctx, s.repo, provider.ID, req.ServiceIDs)
		if err != nil {
			return nil, err
		}
		duration = 0
		for _, svc := range services {
			duration += svc.DurationMinutes
		}
	}
	if duration <= 0 {
		return nil, scheduling.NewValidationError("duration", "duration or service_ids is required")
	}

	free, err := s.freeSlots(ctx, provider.ID, date, duration)
	if err != nil {
		return nil, err
	}

	slots := scheduling.Upcoming(s.grid, date, free, s.now())
	out := make([]string, len(slots))
	for i, t := range slots {
		out[i] = t.String()
	}

	return &response.AvailabilityResponse{
		ProviderID:      provider.ID.String(),
		Date:            date.String(),
		DurationMinutes: duration,
		Slots:           out,
	}, nil
}

// freeSlots reads the provider's free grid for the day from the cache, or
// computes it from the ledger and caches it under the version seen before the
// ledger read.
func (s *availabilityService) freeSlots(ctx context.Context, providerID uuid.UUID, date scheduling.Date, duration int) ([]scheduling.TimeOfDay, error) {
	cached, entry, ok := s.cache.Get(ctx, providerID, date.String(), duration)
	if ok {
		s.metrics.ObserveCacheLookup(true)
		slots := make([]scheduling.TimeOfDay, len(cached))
		for i, m := range cached {
			slots[i] = scheduling.TimeOfDay(m)
		}
		return slots, nil
	}
	s.metrics.ObserveCacheLookup(false)

	dayStart, dayEnd := date.Bounds(s.grid.Location)
	bookings, err := s.repo.Booking.FindByProviderInRange(ctx, providerID, dayStart, dayEnd, entity.ActiveBookingStatuses)
	if err != nil {
		s.log.Error("Failed to load provider calendar",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
			zap.String("date", date.String()),
		)
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	busy := make([]scheduling.Interval, len(bookings))
	for i, b := range bookings {
		busy[i] = scheduling.Interval{Start: b.StartAt, End: b.EndAt}
	}

	free, err := scheduling.FreeSlots(s.grid, date, duration, busy)
	if err != nil {
		return nil, err
	}

	minutes := make([]int, len(free))
	for i, t := range free {
		minutes[i] = int(t)
	}
	s.cache.Set(ctx, entry, minutes)

	return free, nil
}

func (s *availabilityService) ListProviderServices(ctx context.Context, providerID string) ([]response.ServiceResponse, error) {
	provider, err := s.activeProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	services, err := s.repo.Service.FindByProviderID(ctx, provider.ID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	out := make([]response.ServiceResponse, len(services))
	for i, svc := range services {
		out[i] = response.ServiceToResponse(svc)
	}
	return out, nil
}

func (s *availabilityService) activeProvider(ctx context.Context, providerID string) (*entity.Provider, error) {
	return findActiveProvider(ctx, s.repo, providerID)
}

func findActiveProvider(ctx context.Context, repo *repository.Repository, providerID string) (*entity.Provider, error) {
	id, err := uuid.Parse(providerID)
	if err != nil {
		return nil, scheduling.NewValidationError("provider_id", "Must be a valid UUID")
	}

	provider, err := repo.Provider.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find provider: %w", err)
	}
	if provider == nil || !provider.Active {
		return nil, fmt.Errorf("provider %s: %w", providerID, scheduling.ErrNotFound)
	}
	return provider, nil
}

// resolveServices loads the requested services of a provider in request
// order. Unknown, inactive, foreign or repeated ids are a validation error.
func resolveServices(ctx context.Context, repo *repository.Repository, providerID uuid.UUID, rawIDs []string) ([]*entity.Service, error) {
	ids := make([]uuid.UUID, 0, len(rawIDs))
	seen := make(map[uuid.UUID]bool, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, scheduling.NewValidationError("service_ids", "Must be a valid UUID")
		}
		if seen[id] {
			return nil, scheduling.NewValidationError("service_ids", fmt.Sprintf("service %s is listed twice", id))
		}
		seen[id] = true
		ids = append(ids, id)
	}

	found, err := repo.Service.FindByIDs(ctx, providerID, ids)
	if err != nil {
		return nil, fmt.Errorf("find services: %w", err)
	}

	byID := make(map[uuid.UUID]*entity.Service, len(found))
	for _, svc := range found {
		byID[svc.ID] = svc
	}

	services := make([]*entity.Service, 0, len(ids))
	for _, id := range ids {
		svc, ok := byID[id]
		if !ok || !svc.Active {
			return nil, scheduling.NewValidationError("service_ids", fmt.Sprintf("service %s is not offered by this provider", id))
		}
		services = append(services, svc)
	}
	return services, nil
}
