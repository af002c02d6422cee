package utils

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Payment  PaymentConfig
	Schedule ScheduleConfig
	Booking  BookingConfig
	Worker   WorkerConfig
	Security SecurityConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Name          string
	User          string
	Password      string
	MaxConns      int32
	MigrateOnBoot bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	Channel  string
}

type PaymentConfig struct {
	Driver          string // "stripe" or "fake"
	StripeSecretKey string
	Currency        string
	Timeout         time.Duration
}

// ScheduleConfig describes the daily slot grid shared by every provider.
type ScheduleConfig struct {
	Timezone   string
	Open       string
	Close      string
	StepMins   int
	BreakStart string
	BreakEnd   string
	LeadMins   int
}

type BookingConfig struct {
	ConfirmationPolicy    string
	FullRefundHours       int
	LateRefundPercent     int
	BlockLateCancellation bool
	NoShowChargePercent   int
	PendingTTL            time.Duration
}

type WorkerConfig struct {
	SweepSpec        string
	SettlementSpec   string
	SettlementBatch  int
	SettlementMaxTry int
}

type SecurityConfig struct {
	WebhookSecret  string
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "coiffeur-booking")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("DB_MIGRATE_ON_BOOT", true)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_CACHE_TTL", "2m")
	viper.SetDefault("REDIS_EVENTS_CHANNEL", "booking-events")
	viper.SetDefault("PAYMENT_DRIVER", "fake")
	viper.SetDefault("PAYMENT_CURRENCY", "eur")
	viper.SetDefault("PAYMENT_TIMEOUT", "10s")
	viper.SetDefault("SCHEDULE_TIMEZONE", "Europe/Paris")
	viper.SetDefault("SCHEDULE_OPEN", "09:00")
	viper.SetDefault("SCHEDULE_CLOSE", "22:30")
	viper.SetDefault("SCHEDULE_STEP_MINUTES", 30)
	viper.SetDefault("SCHEDULE_BREAK_START", "12:00")
	viper.SetDefault("SCHEDULE_BREAK_END", "13:00")
	viper.SetDefault("SCHEDULE_LEAD_MINUTES", 30)
	viper.SetDefault("BOOKING_CONFIRMATION_POLICY", "auto")
	viper.SetDefault("BOOKING_FULL_REFUND_HOURS", 24)
	viper.SetDefault("BOOKING_LATE_REFUND_PERCENT", 50)
	viper.SetDefault("BOOKING_BLOCK_LATE_CANCELLATION", false)
	viper.SetDefault("BOOKING_NO_SHOW_CHARGE_PERCENT", 100)
	viper.SetDefault("BOOKING_PENDING_TTL", "30m")
	viper.SetDefault("SWEEP_SPEC", "@every 5m")
	viper.SetDefault("SETTLEMENT_SPEC", "@every 1m")
	viper.SetDefault("SETTLEMENT_BATCH", 25)
	viper.SetDefault("SETTLEMENT_MAX_ATTEMPTS", 10)
	viper.SetDefault("RATE_LIMIT_RPS", 2)
	viper.SetDefault("RATE_LIMIT_BURST", 5)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// .env is optional; the environment always wins
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:          viper.GetString("DB_HOST"),
			Port:          viper.GetString("DB_PORT"),
			Name:          viper.GetString("DB_NAME"),
			User:          viper.GetString("DB_USER"),
			Password:      viper.GetString("DB_PASS"),
			MaxConns:      viper.GetInt32("DB_MAX_CONNS"),
			MigrateOnBoot: viper.GetBool("DB_MIGRATE_ON_BOOT"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			CacheTTL: viper.GetDuration("REDIS_CACHE_TTL"),
			Channel:  viper.GetString("REDIS_EVENTS_CHANNEL"),
		},
		Payment: PaymentConfig{
			Driver:          viper.GetString("PAYMENT_DRIVER"),
			StripeSecretKey: viper.GetString("STRIPE_SECRET_KEY"),
			Currency:        viper.GetString("PAYMENT_CURRENCY"),
			Timeout:         viper.GetDuration("PAYMENT_TIMEOUT"),
		},
		Schedule: ScheduleConfig{
			Timezone:   viper.GetString("SCHEDULE_TIMEZONE"),
			Open:       viper.GetString("SCHEDULE_OPEN"),
			Close:      viper.GetString("SCHEDULE_CLOSE"),
			StepMins:   viper.GetInt("SCHEDULE_STEP_MINUTES"),
			BreakStart: viper.GetString("SCHEDULE_BREAK_START"),
			BreakEnd:   viper.GetString("SCHEDULE_BREAK_END"),
			LeadMins:   viper.GetInt("SCHEDULE_LEAD_MINUTES"),
		},
		Booking: BookingConfig{
			ConfirmationPolicy:    viper.GetString("BOOKING_CONFIRMATION_POLICY"),
			FullRefundHours:       viper.GetInt("BOOKING_FULL_REFUND_HOURS"),
			LateRefundPercent:     viper.GetInt("BOOKING_LATE_REFUND_PERCENT"),
			BlockLateCancellation: viper.GetBool("BOOKING_BLOCK_LATE_CANCELLATION"),
			NoShowChargePercent:   viper.GetInt("BOOKING_NO_SHOW_CHARGE_PERCENT"),
			PendingTTL:            viper.GetDuration("BOOKING_PENDING_TTL"),
		},
		Worker: WorkerConfig{
			SweepSpec:        viper.GetString("SWEEP_SPEC"),
			SettlementSpec:   viper.GetString("SETTLEMENT_SPEC"),
			SettlementBatch:  viper.GetInt("SETTLEMENT_BATCH"),
			SettlementMaxTry: viper.GetInt("SETTLEMENT_MAX_ATTEMPTS"),
		},
		Security: SecurityConfig{
			WebhookSecret:  viper.GetString("WEBHOOK_SECRET"),
			RateLimitRPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: viper.GetInt("RATE_LIMIT_BURST"),
			AllowedOrigins: strings.Split(viper.GetString("CORS_ALLOWED_ORIGINS"), ","),
		},
	}

	return config, nil
}
