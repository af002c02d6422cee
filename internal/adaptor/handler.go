package adaptor

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/internal/usecase"
	"coiffeur-booking/pkg/utils"
)

type Handler struct {
	Availability *AvailabilityHandler
	Booking      *BookingHandler
	Payment      *PaymentHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Availability: NewAvailabilityHandler(service.Availability, log),
		Booking:      NewBookingHandler(service.Booking, log),
		Payment:      NewPaymentHandler(service.Booking, log),
	}
}

// actorFromRequest reads the identity set by the session middleware.
func actorFromRequest(r *http.Request) (scheduling.Actor, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		return scheduling.Actor{}, false
	}
	role, ok := utils.GetRoleFromContext(r.Context())
	if !ok {
		return scheduling.Actor{}, false
	}
	return scheduling.Actor{ID: userID, Role: scheduling.Role(role)}, true
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(log *zap.Logger, w http.ResponseWriter, err error, operation string) {
	var validationErr *scheduling.ValidationError

	switch {
	case errors.As(err, &validationErr):
		log.Warn(operation+" validation failed", zap.Error(err), zap.String("operation", operation))
		utils.ResponseBadRequest(w, "Validation failed", validationErr.Fields)

	case errors.Is(err, scheduling.ErrNotFound):
		log.Warn(operation+" failed - not found", zap.Error(err), zap.String("operation", operation))
		utils.ResponseNotFound(w, "Resource not found")

	case errors.Is(err, scheduling.ErrSlotConflict):
		log.Info(operation+" failed - slot taken", zap.Error(err), zap.String("operation", operation))
		utils.ResponseConflict(w, "This time slot is no longer available")

	case errors.Is(err, scheduling.ErrInvalidState):
		log.Warn(operation+" failed - invalid state", zap.Error(err), zap.String("operation", operation))
		utils.ResponseConflict(w, "Action unavailable for this booking")

	case errors.Is(err, scheduling.ErrNotOwner):
		log.Warn(operation+" failed - not owner", zap.Error(err), zap.String("operation", operation))
		utils.ResponseForbidden(w, "Action unavailable for this booking")

	case errors.Is(err, scheduling.ErrTooEarly):
		utils.ResponseUnprocessable(w, "The appointment has not started yet")

	case errors.Is(err, scheduling.ErrTooLateToCancel):
		utils.ResponseUnprocessable(w, "It is too late to cancel this booking")

	case errors.Is(err, scheduling.ErrPaymentMismatch):
		log.Warn(operation+" failed - payment mismatch", zap.Error(err), zap.String("operation", operation))
		utils.ResponseConflict(w, "Payment reference does not match this booking")

	case errors.Is(err, scheduling.ErrPayment):
		log.Warn(operation+" failed - payment", zap.Error(err), zap.String("operation", operation))
		utils.ResponsePaymentRequired(w, "Payment could not be authorized")

	default:
		log.Error(operation+" failed",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
