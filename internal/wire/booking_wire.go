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

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	repo *repository.Repository,
	config *utils.Config,
	log *zap.Logger,
) {
	limiter := middleware.NewRateLimiter(config.Security.RateLimitRPS, config.Security.RateLimitBurst)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		// ==================== CLIENT ROUTES ====================
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(log, string(entity.RoleClient)))

			// POST /api/bookings - Reserve a slot and authorize payment
			r.With(middleware.RateLimit(limiter, log)).Post("/api/bookings", bookingHandler.CreateBooking)

			// GET /api/user/bookings - Booking history of the client
			r.Get("/api/user/bookings", bookingHandler.GetClientBookings)
		})

		// ==================== OWNER ROUTES ====================
		// Ownership is checked per booking by the service
		r.Get("/api/bookings/{id}", bookingHandler.GetBooking)

		// POST /api/bookings/{id}/{action} - accept, decline, cancel, complete, no-show
		r.Post("/api/bookings/{id}/{action}", bookingHandler.TransitionBooking)
	})
}
