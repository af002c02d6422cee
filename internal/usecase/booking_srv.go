package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/dto/request"
	"coiffeur-booking/internal/dto/response"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/cache"
	"coiffeur-booking/pkg/metrics"
	"coiffeur-booking/pkg/notify"
	"coiffeur-booking/pkg/utils"
)

var bookingTracer = otel.Tracer("coiffeur.usecase.booking")

const referenceAttempts = 3

type BookingService interface {
	// Client
	CreateBooking(ctx context.Context, actor scheduling.Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	GetClientBookings(ctx context.Context, actor scheduling.Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)

	// Client or provider of the booking
	TransitionBooking(ctx context.Context, actor scheduling.Actor, bookingID, action string) (*response.BookingResponse, error)
	GetBooking(ctx context.Context, actor scheduling.Actor, bookingID string) (*response.BookingResponse, error)

	// Provider
	GetBookingsForProvider(ctx context.Context, actor scheduling.Actor, req *request.ProviderBookingsRequest) ([]response.BookingResponse, error)

	// System
	ConfirmPayment(ctx context.Context, req *request.ConfirmPaymentRequest) (*response.BookingResponse, error)
	ExpireBooking(ctx context.Context, bookingID uuid.UUID) error
}

type BookingDeps struct {
	Grid      scheduling.Grid
	Lifecycle *scheduling.Lifecycle
	Payments  PaymentCoordinator
	Cache     *cache.AvailabilityCache
	Notifier  notify.Dispatcher
	Metrics   *metrics.BookingMetrics
	Now       Clock
}

type bookingService struct {
	repo      *repository.Repository
	grid      scheduling.Grid
	lifecycle *scheduling.Lifecycle
	payments  PaymentCoordinator
	cache     *cache.AvailabilityCache
	notifier  notify.Dispatcher
	metrics   *metrics.BookingMetrics
	now       Clock
	log       *zap.Logger
}

func NewBookingService(repo *repository.Repository, deps BookingDeps, log *zap.Logger) BookingService {
	return &bookingService{
		repo:      repo,
		grid:      deps.Grid,
		lifecycle: deps.Lifecycle,
		payments:  deps.Payments,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		now:       deps.Now,
		log:       log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, actor scheduling.Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.create")
	defer span.End()

	if actor.Role != scheduling.RoleClient {
		return nil, scheduling.ErrNotOwner
	}

	// Validate request
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create booking validation failed", zap.Any("errors", errs))
		return nil, &scheduling.ValidationError{Fields: errs}
	}

	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	startTime, err := scheduling.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, err
	}
	if !s.grid.OnGrid(startTime) {
		return nil, scheduling.NewValidationError("start_time", fmt.Sprintf("%s is not a bookable start time", startTime))
	}

	now := s.now()
	if !s.grid.Bookable(date, startTime, now) {
		return nil, scheduling.NewValidationError("start_time", "must be in the future and respect the booking lead time")
	}

	provider, err := findActiveProvider(ctx, s.repo, req.ProviderID)
	if err != nil {
		return nil, err
	}

	var (
		fee     int64
		address *string
	)
	location := entity.BookingLocation(req.Location)
	if location == entity.LocationHomeService {
		if !provider.OffersHomeService {
			return nil, scheduling.NewValidationError("location", "provider does not offer home service")
		}
		if req.Address == nil || strings.TrimSpace(*req.Address) == "" {
			return nil, scheduling.NewValidationError("address", "This field is required for this location")
		}
		trimmed := strings.TrimSpace(*req.Address)
		address = &trimmed
		fee = provider.HomeServiceFee
	}

	services, err := resolveServices(ctx, s.repo, provider.ID, req.ServiceIDs)
	if err != nil {
		return nil, err
	}

	booking := s.newBooking(actor.ID, provider.ID, date, startTime, location, address, fee, services, now)
	if err := scheduling.CheckMoney(booking); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("booking.id", booking.ID.String()),
		attribute.String("provider.id", provider.ID.String()),
		attribute.String("booking.start_at", booking.StartAt.Format("2006-01-02T15:04Z07:00")),
	)

	if err := s.reserve(ctx, booking, now); err != nil {
		if errors.Is(err, scheduling.ErrSlotConflict) {
			s.metrics.ObserveReservation("conflict")
			return nil, err
		}
		s.metrics.ObserveReservation("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return nil, err
	}
	s.metrics.ObserveReservation("reserved")

	// Compensation and invalidation must run even if the caller has gone away.
	detached := context.WithoutCancel(ctx)
	s.cache.Invalidate(detached, provider.ID)

	auth, err := s.payments.Authorize(ctx, booking)
	if err != nil {
		s.compensate(detached, booking)
		return nil, err
	}

	if err := s.repo.Booking.SetPaymentRef(detached, booking.ID, auth.Ref); err != nil {
		s.log.Error("Failed to attach authorization to booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
		)
		s.payments.Release(detached, booking, auth.Ref)
		s.compensate(detached, booking)
		return nil, fmt.Errorf("%w: %v", scheduling.ErrPayment, err)
	}
	booking.PaymentRef = &auth.Ref

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("reference", booking.Reference),
		zap.String("client_id", actor.ID.String()),
		zap.String("provider_id", provider.ID.String()),
		zap.Time("start_at", booking.StartAt),
		zap.Int64("total", booking.Total),
	)

	s.dispatch(ctx, booking, notify.EventBookingCreated, booking.ProviderID)

	resp := response.BookingToResponse(booking, s.grid.Location)
	resp.ClientSecret = auth.ClientSecret
	return &resp, nil
}

// reserve writes the booking, drawing a new reference when the generated one
// is already taken.
func (s *bookingService) reserve(ctx context.Context, booking *entity.Booking, now time.Time) error {
	var err error
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		if attempt > 0 {
			booking.Reference = utils.GenerateBookingReference(now.In(s.grid.Location))
		}
		err = s.repo.Booking.Reserve(ctx, booking)
		if !errors.Is(err, repository.ErrDuplicateReference) {
			return err
		}
	}
	return err
}

func (s *bookingService) newBooking(clientID, providerID uuid.UUID, date scheduling.Date, start scheduling.TimeOfDay, location entity.BookingLocation, address *string, fee int64, services []*entity.Service, now time.Time) *entity.Booking {
	id := uuid.New()
	items := make([]entity.BookingItem, len(services))

	var (
		subtotal int64
		duration int
	)
	for i, svc := range services {
		items[i] = entity.BookingItem{
			BookingID:       id,
			Position:        i + 1,
			ServiceID:       svc.ID,
			Name:            svc.Name,
			Price:           svc.Price,
			DurationMinutes: svc.DurationMinutes,
		}
		subtotal += svc.Price
		duration += svc.DurationMinutes
	}

	startAt := scheduling.Combine(date, start, s.grid.Location)
	return &entity.Booking{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        id,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Reference:       utils.GenerateBookingReference(now.In(s.grid.Location)),
		ClientID:        clientID,
		ProviderID:      providerID,
		StartAt:         startAt,
		DurationMinutes: duration,
		EndAt:           scheduling.AddMinutes(startAt, duration),
		Location:        location,
		Address:         address,
		Subtotal:        subtotal,
		Fee:             fee,
		Total:           subtotal + fee,
		Status:          entity.BookingStatusPendingPayment,
		Items:           items,
	}
}

// compensate cancels a booking whose authorization failed. If this fails too
// the sweep expires the booking later.
func (s *bookingService) compensate(ctx context.Context, booking *entity.Booking) {
	if _, err := s.transition(ctx, booking.ID, scheduling.SystemActor, scheduling.ActionPaymentFailed, ""); err != nil {
		s.log.Error("Failed to cancel booking after payment failure",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
		)
	}
}

func (s *bookingService) ConfirmPayment(ctx context.Context, req *request.ConfirmPaymentRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, &scheduling.ValidationError{Fields: errs}
	}

	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, scheduling.NewValidationError("booking_id", "Must be a valid UUID")
	}

	booking, err := s.transition(ctx, id, scheduling.SystemActor, scheduling.ActionConfirmPayment, req.PaymentRef)
	if err != nil {
		return nil, err
	}

	resp := response.BookingToResponse(booking, s.grid.Location)
	return &resp, nil
}

func (s *bookingService) TransitionBooking(ctx context.Context, actor scheduling.Actor, bookingID, action string) (*response.BookingResponse, error) {
	id, err := uuid.Parse(bookingID)
	if err != nil {
		return nil, scheduling.NewValidationError("id", "Must be a valid UUID")
	}

	act, err := scheduling.ParseAction(action)
	if err != nil {
		return nil, err
	}

	booking, err := s.transition(ctx, id, actor, act, "")
	if err != nil {
		return nil, err
	}

	resp := response.BookingToResponse(booking, s.grid.Location)
	return &resp, nil
}

func (s *bookingService) ExpireBooking(ctx context.Context, bookingID uuid.UUID) error {
	_, err := s.transition(ctx, bookingID, scheduling.SystemActor, scheduling.ActionExpire, "")
	return err
}

// transition applies action to the booking under row lock, then runs the
// settlement the transition owes and notifies the other party. Neither of
// those can fail the transition.
func (s *bookingService) transition(ctx context.Context, id uuid.UUID, actor scheduling.Actor, action scheduling.Action, paymentRef string) (*entity.Booking, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", id.String()),
		attribute.String("booking.action", string(action)),
		attribute.String("actor.role", string(actor.Role)),
	)

	now := s.now()
	booking, job, err := s.repo.Booking.Transition(ctx, id, func(b *entity.Booking) (*entity.SettlementJob, error) {
		settlement, err := s.lifecycle.Apply(b, actor, action, now, paymentRef)
		if err != nil || settlement == nil {
			return nil, err
		}
		return &entity.SettlementJob{
			BaseSimple: entity.BaseSimple{
				ID:        uuid.New(),
				CreatedAt: now,
			},
			BookingID:     b.ID,
			Kind:          settlement.Kind,
			PaymentRef:    settlement.PaymentRef,
			Amount:        settlement.Amount,
			NextAttemptAt: now.Add(settlementLease),
		}, nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(action), outcomeOf(err))
		s.log.Info("Transition refused",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.String("action", string(action)),
			zap.String("actor_role", string(actor.Role)),
		)
		return nil, err
	}
	s.metrics.ObserveTransition(string(action), "applied")

	s.log.Info("Booking transitioned",
		zap.String("booking_id", booking.ID.String()),
		zap.String("action", string(action)),
		zap.String("status", string(booking.Status)),
	)

	detached := context.WithoutCancel(ctx)

	if !booking.Status.HoldsSlot() {
		s.cache.Invalidate(detached, booking.ProviderID)
	}

	if job != nil {
		// queued for retry on failure
		_ = s.payments.Settle(detached, job)
	}

	s.notifyTransition(detached, booking, actor, action)
	return booking, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, scheduling.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, scheduling.ErrNotFound):
		return "not_found"
	case errors.Is(err, scheduling.ErrTooEarly), errors.Is(err, scheduling.ErrTooLateToCancel):
		return "temporal"
	case errors.Is(err, scheduling.ErrPaymentMismatch):
		return "payment_mismatch"
	}
	return "error"
}

func (s *bookingService) notifyTransition(ctx context.Context, b *entity.Booking, actor scheduling.Actor, action scheduling.Action) {
	var event notify.EventType
	switch {
	case action == scheduling.ActionConfirmPayment && b.AcceptedAt != nil:
		event = notify.EventPaymentConfirmed
	case b.Status == entity.BookingStatusConfirmed:
		event = notify.EventBookingConfirmed
	case b.Status == entity.BookingStatusDeclined:
		event = notify.EventBookingDeclined
	case b.Status == entity.BookingStatusCancelled:
		event = notify.EventBookingCancelled
	case b.Status == entity.BookingStatusCompleted:
		event = notify.EventBookingCompleted
	case b.Status == entity.BookingStatusNoShow:
		event = notify.EventBookingNoShow
	default:
		event = notify.EventPaymentConfirmed
	}

	switch actor.Role {
	case scheduling.RoleClient:
		s.dispatch(ctx, b, event, b.ProviderID)
	case scheduling.RoleProvider:
		s.dispatch(ctx, b, event, b.ClientID)
	default:
		s.dispatch(ctx, b, event, b.ClientID)
		s.dispatch(ctx, b, event, b.ProviderID)
	}
}

func (s *bookingService) dispatch(ctx context.Context, b *entity.Booking, event notify.EventType, recipient uuid.UUID) {
	err := s.notifier.Dispatch(ctx, notify.Event{
		Type:       event,
		BookingID:  b.ID,
		Reference:  b.Reference,
		ClientID:   b.ClientID,
		ProviderID: b.ProviderID,
		Status:     string(b.Status),
		StartAt:    b.StartAt,
		Recipient:  recipient,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.log.Warn("Notification failed", zap.Error(err), zap.String("booking_id", b.ID.String()))
	}
}

func (s *bookingService) GetBooking(ctx context.Context, actor scheduling.Actor, bookingID string) (*response.BookingResponse, error) {
	id, err := uuid.Parse(bookingID)
	if err != nil {
		return nil, scheduling.NewValidationError("id", "Must be a valid UUID")
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, scheduling.ErrNotFound)
	}

	isClient := actor.Role == scheduling.RoleClient && actor.ID == booking.ClientID
	isProvider := actor.Role == scheduling.RoleProvider && actor.ID == booking.ProviderID
	if !isClient && !isProvider {
		return nil, scheduling.ErrNotOwner
	}

	resp := response.BookingToResponse(booking, s.grid.Location)
	return &resp, nil
}

func (s *bookingService) GetClientBookings(ctx context.Context, actor scheduling.Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	if actor.Role != scheduling.RoleClient {
		return nil, scheduling.ErrNotOwner
	}

	limit := req.Limit()
	offset := req.Offset()

	bookings, err := s.repo.Booking.FindByClientID(ctx, actor.ID, limit, offset)
	if err != nil {
		s.log.Error("Failed to get client bookings",
			zap.Error(err),
			zap.String("client_id", actor.ID.String()),
		)
		return nil, fmt.Errorf("get client bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByClientID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("count client bookings: %w", err)
	}

	out := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		out[i] = response.BookingToResponse(b, s.grid.Location)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	return response.NewPaginatedResponse(out, page, limit, total), nil
}

func (s *bookingService) GetBookingsForProvider(ctx context.Context, actor scheduling.Actor, req *request.ProviderBookingsRequest) ([]response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, &scheduling.ValidationError{Fields: errs}
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, scheduling.NewValidationError("provider_id", "Must be a valid UUID")
	}
	if actor.Role != scheduling.RoleProvider || actor.ID != providerID {
		return nil, scheduling.ErrNotOwner
	}

	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	from, to := date.Bounds(s.grid.Location)
	bookings, err := s.repo.Booking.FindByProviderInRange(ctx, providerID, from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("get provider bookings: %w", err)
	}

	out := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		out[i] = response.BookingToResponse(b, s.grid.Location)
	}
	return out, nil
}
