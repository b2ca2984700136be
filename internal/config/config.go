package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	StaffJWTSecret     string
	CORSAllowedOrigins []string

	// MoMo wallet gateway
	MomoEndpoint    string
	MomoPartnerCode string
	MomoAccessKey   string
	MomoSecretKey   string
	MomoReturnURL   string
	MomoNotifyURL   string

	// Business constants. All fee amounts are VND.
	PlatformFeePercent       int
	ReservationFee           int64
	CancellationFee          int64
	CancellationWindow       time.Duration
	PaymentTimeout           time.Duration
	ReminderWindowStart      time.Duration
	ReminderWindowEnd        time.Duration
	AutoRejectMargin         time.Duration
	AutoRejectVoucherPercent int

	ReminderInterval   time.Duration
	AutoRejectInterval time.Duration
	TimeoutInterval    time.Duration
	OutboxInterval     time.Duration

	GatewayMaxRetries int
	GatewayBaseDelay  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		StaffJWTSecret:     getEnv("STAFF_JWT_SECRET", ""),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		MomoEndpoint:    getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn"),
		MomoPartnerCode: getEnv("MOMO_PARTNER_CODE", ""),
		MomoAccessKey:   getEnv("MOMO_ACCESS_KEY", ""),
		MomoSecretKey:   getEnv("MOMO_SECRET_KEY", ""),
		MomoReturnURL:   getEnv("MOMO_RETURN_URL", ""),
		MomoNotifyURL:   getEnv("MOMO_NOTIFY_URL", ""),

		PlatformFeePercent:       getEnvAsInt("PLATFORM_FEE_PERCENT", 5),
		ReservationFee:           getEnvAsInt64("RESERVATION_FEE", 50_000),
		CancellationFee:          getEnvAsInt64("CANCELLATION_FEE", 50_000),
		CancellationWindow:       getEnvAsDuration("CANCELLATION_WINDOW", 24*time.Hour),
		PaymentTimeout:           getEnvAsDuration("PAYMENT_TIMEOUT", 10*time.Minute),
		ReminderWindowStart:      getEnvAsDuration("REMINDER_WINDOW_START", 30*time.Minute),
		ReminderWindowEnd:        getEnvAsDuration("REMINDER_WINDOW_END", 35*time.Minute),
		AutoRejectMargin:         getEnvAsDuration("AUTO_REJECT_MARGIN", 30*time.Minute),
		AutoRejectVoucherPercent: getEnvAsInt("AUTO_REJECT_VOUCHER_PERCENT", 10),

		ReminderInterval:   getEnvAsDuration("REMINDER_INTERVAL", time.Minute),
		AutoRejectInterval: getEnvAsDuration("AUTO_REJECT_INTERVAL", time.Minute),
		TimeoutInterval:    getEnvAsDuration("PAYMENT_TIMEOUT_INTERVAL", time.Minute),
		OutboxInterval:     getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),

		GatewayMaxRetries: getEnvAsInt("GATEWAY_MAX_RETRIES", 3),
		GatewayBaseDelay:  getEnvAsDuration("GATEWAY_BASE_DELAY", 500*time.Millisecond),
	}
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
