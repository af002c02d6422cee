package adaptor

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coiffeur-booking/internal/dto/request"
	"coiffeur-booking/internal/usecase"
	"coiffeur-booking/pkg/utils"
)

type AvailabilityHandler struct {
	service usecase.AvailabilityService
	log     *zap.Logger
}

func NewAvailabilityHandler(service usecase.AvailabilityService, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
		log:     log.With(zap.String("handler", "availability")),
	}
}

// GetAvailableSlots handles GET /api/providers/{id}/slots?date=&duration=|service_ids= (public)
func (h *AvailabilityHandler) GetAvailableSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := &request.AvailabilityRequest{
		ProviderID: chi.URLParam(r, "id"),
		Date:       query.Get("date"),
		Duration:   utils.ParseInt(query.Get("duration"), 0),
	}
	if raw := strings.TrimSpace(query.Get("service_ids")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			req.ServiceIDs = append(req.ServiceIDs, strings.TrimSpace(id))
		}
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), req)
	if err != nil {
		handleServiceError(h.log, w, err, "get available slots")
		return
	}

	utils.ResponseSuccess(w, "success", slots)
}

// ListServices handles GET /api/providers/{id}/services (public)
func (h *AvailabilityHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListProviderServices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.log, w, err, "list services")
		return
	}

	utils.ResponseSuccess(w, "success", services)
}
