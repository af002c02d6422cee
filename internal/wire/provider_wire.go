package wire

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coiffeur-booking/internal/adaptor"
	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/pkg/middleware"
	"coiffeur-booking/pkg/utils"
)

func wireProvider(
	r chi.Router,
	availabilityHandler *adaptor.AvailabilityHandler,
	bookingHandler *adaptor.BookingHandler,
	repo *repository.Repository,
	config *utils.Config,
	log *zap.Logger,
) {
	r.Route("/api/providers/{id}", func(r chi.Router) {
		// ==================== PUBLIC ROUTES ====================
		r.Get("/slots", availabilityHandler.GetAvailableSlots)
		r.Get("/services", availabilityHandler.ListServices)

		// ==================== PROVIDER ROUTES ====================
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthSession(repo.Session, log))
			r.Use(middleware.RequireRole(log, string(entity.RoleProvider)))

			// GET /api/providers/{id}/bookings?date= - Day view of the provider's calendar
			r.Get("/bookings", bookingHandler.GetBookingsForProvider)
		})
	})
}
