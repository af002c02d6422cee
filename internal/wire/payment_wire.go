package wire

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coiffeur-booking/internal/adaptor"
	"coiffeur-booking/pkg/middleware"
	"coiffeur-booking/pkg/utils"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	config *utils.Config,
	log *zap.Logger,
) {
	// ==================== SYSTEM ROUTES ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.WebhookSecret(config.Security.WebhookSecret, log))

		// POST /api/payments/confirm - Payment confirmed by the gateway
		r.Post("/api/payments/confirm", paymentHandler.ConfirmPayment)
	})
}
