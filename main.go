// main.go
package main

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"coiffeur-booking/cmd"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/usecase"
	"coiffeur-booking/internal/wire"
	"coiffeur-booking/internal/worker"
	"coiffeur-booking/pkg/cache"
	"coiffeur-booking/pkg/database"
	"coiffeur-booking/pkg/metrics"
	"coiffeur-booking/pkg/notify"
	"coiffeur-booking/pkg/payment"
	"coiffeur-booking/pkg/utils"
)

const notifyTimeout = 3 * time.Second

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.Name, config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	if config.Database.MigrateOnBoot {
		if err := database.Migrate(config.Database); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := usecase.Deps{
		Gateway: newGateway(config.Payment, logger),
		Metrics: metrics.NewBookingMetrics(registry),
	}

	// Redis backs the availability cache and event pub/sub; both degrade without it
	redisClient, err := cache.InitRedis(config.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache and event publishing", zap.Error(err))
		deps.Notifier = notify.NewLogDispatcher(logger)
	} else {
		defer redisClient.Close()
		deps.Cache = cache.NewAvailabilityCache(redisClient, config.Redis.CacheTTL, logger)
		deps.Notifier = notify.NewAsync(notify.NewRedisPublisher(redisClient, config.Redis.Channel), notifyTimeout, logger)
	}

	// Initialize all repositories
	repos := repository.NewRepository(db, logger)

	// Wire all dependencies
	app, err := wire.Wiring(repos, deps, registry, config, logger)
	if err != nil {
		logger.Fatal("Failed to wire application", zap.Error(err))
	}

	scheduler := worker.NewScheduler(app.Service, logger)
	if err := scheduler.Register(config.Worker); err != nil {
		logger.Fatal("Failed to schedule workers", zap.Error(err))
	}
	scheduler.Start()

	// Start server
	err = cmd.APIServer(app.Router, config.App.Port, logger, func(ctx context.Context) {
		scheduler.Stop(ctx)
	})
	if err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
}

func newGateway(config utils.PaymentConfig, logger *zap.Logger) payment.Gateway {
	if config.Driver == "stripe" {
		if config.StripeSecretKey == "" {
			logger.Fatal("PAYMENT_DRIVER=stripe requires STRIPE_SECRET_KEY")
		}
		return payment.NewStripeGateway(config.StripeSecretKey, logger)
	}

	logger.Warn("Using the in-memory payment gateway; never enable this in production")
	return payment.NewFakeGateway()
}
