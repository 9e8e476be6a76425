// Package config loads application configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	// Invoicing policy.
	InvoiceNumberPrefix string
	InvoiceGraceDays    int
	InvoiceIssueAsDraft bool
	VatRateBps          int64

	// Payment policy.
	PaymentIdempotencyBucketSeconds int64
	PaymentSessionTTLSeconds        int64
	OfflinePaymentMarksPaid         bool
	GatewayProvider                 string
	GatewayAPIKey                   string
	GatewayWebhookSecret            string
	GatewayTimeoutSeconds           int
	GatewayReturnURL                string

	// Sweep scheduling.
	SweepIntervalSeconds int

	Metrics MetricsConfig
}

// MetricsConfig configures the OTLP metrics exporter.
type MetricsConfig struct {
	Enabled  bool
	Exporter string
	Endpoint string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "groupcart"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "groupcart"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 32),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		InvoiceNumberPrefix: getenv("INVOICE_NUMBER_PREFIX", "INV"),
		InvoiceGraceDays:    getenvInt("INVOICE_GRACE_DAYS", 14),
		InvoiceIssueAsDraft: getenvBool("INVOICE_ISSUE_AS_DRAFT", false),
		VatRateBps:          getenvInt64("VAT_RATE_BPS", 2000),

		PaymentIdempotencyBucketSeconds: getenvInt64("PAYMENT_IDEMPOTENCY_BUCKET_SECONDS", 60),
		PaymentSessionTTLSeconds:        getenvInt64("PAYMENT_SESSION_TTL_SECONDS", 1800),
		OfflinePaymentMarksPaid:         getenvBool("OFFLINE_PAYMENT_MARKS_PAID", false),
		GatewayProvider:                 strings.ToLower(getenv("PAYMENT_GATEWAY_PROVIDER", "sandbox")),
		GatewayAPIKey:                   strings.TrimSpace(getenv("PAYMENT_GATEWAY_API_KEY", "")),
		GatewayWebhookSecret:            strings.TrimSpace(getenv("PAYMENT_GATEWAY_WEBHOOK_SECRET", "")),
		GatewayTimeoutSeconds:           getenvInt("PAYMENT_GATEWAY_TIMEOUT_SECONDS", 10),
		GatewayReturnURL:                getenv("PAYMENT_GATEWAY_RETURN_URL", "http://localhost:8080/v1/payments/return"),

		SweepIntervalSeconds: getenvInt("SWEEP_INTERVAL_SECONDS", 300),

		Metrics: MetricsConfig{
			Enabled:  getenvBool("METRICS_ENABLED", false),
			Exporter: strings.ToLower(getenv("METRICS_EXPORTER", "grpc")),
			Endpoint: strings.TrimSpace(getenv("METRICS_ENDPOINT", "localhost:4317")),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
