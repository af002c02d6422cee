// internal/wire/wire.go
package wire

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"coiffeur-booking/internal/adaptor"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/usecase"
	"coiffeur-booking/pkg/middleware"
	"coiffeur-booking/pkg/utils"
)

// App holds the router and the services the workers need
type App struct {
	Router  *chi.Mux
	Service *usecase.Service
}

// Wiring builds services and handlers and mounts every route
func Wiring(repo *repository.Repository, deps usecase.Deps, gatherer prometheus.Gatherer, config *utils.Config, logger *zap.Logger) (*App, error) {
	service, err := usecase.NewService(repo, deps, config, logger)
	if err != nil {
		return nil, err
	}
	handler := adaptor.NewHandler(service, logger)

	router := setupRouter(handler, repo, gatherer, config, logger)

	return &App{
		Router:  router,
		Service: service,
	}, nil
}

func setupRouter(
	handler *adaptor.Handler,
	repo *repository.Repository,
	gatherer prometheus.Gatherer,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(config.Security.AllowedOrigins))

	// Apply routes
	wireProvider(r, handler.Availability, handler.Booking, repo, config, logger)
	wireBooking(r, handler.Booking, repo, config, logger)
	wirePayment(r, handler.Payment, config, logger)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
