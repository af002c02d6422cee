package adaptor

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"coiffeur-booking/internal/dto/request"
	"coiffeur-booking/internal/usecase"
	"coiffeur-booking/pkg/utils"
)

type PaymentHandler struct {
	service usecase.BookingService
	log     *zap.Logger
}

func NewPaymentHandler(service usecase.BookingService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// ConfirmPayment handles POST /api/payments/confirm (payment webhook relay)
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req request.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	booking, err := h.service.ConfirmPayment(r.Context(), &req)
	if err != nil {
		handleServiceError(h.log, w, err, "confirm payment")
		return
	}

	utils.ResponseSuccess(w, "Payment confirmed", booking)
}
