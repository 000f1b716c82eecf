package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Database          DatabaseConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Mpesa             MpesaConfig
	Gateway           GatewayConfig
	Confirmation      ConfirmationConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type MpesaConfig struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	PassKey          string
	TransactionType  string
	CallbackBaseURL  string
	HTTPTimeout      time.Duration
	TokenRefreshSkew time.Duration
}

type GatewayConfig struct {
	Default           string
	RentalsAPIBaseURL string
	RentalsAPIKey     string
	RentalsAPITimeout time.Duration
}

type ConfirmationConfig struct {
	MaxAttempts  int
	PollInterval time.Duration
	CallTimeout  time.Duration
}

type PaymentsConfig struct {
	CallbackMaxAttempts   int32
	CallbackRetryInterval time.Duration
	CallbackHTTPTimeout   time.Duration
	PendingTimeout        time.Duration
	ReconcileStaleAfter   time.Duration
	JobBatchSize          int32
	PhoneCountryCode      string
	Currency              string
}

type JobsConfig struct {
	ReconcileInterval        time.Duration
	CallbackDispatchInterval time.Duration
	ExpirePendingInterval    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, errors.New("DB_DSN environment variable is required")
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))
	if driver != "mysql" && driver != "sqlite" {
		return nil, fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", driver)
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "rent-payments-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Driver:          driver,
			DSN:             dsn,
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("DB_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Mpesa: MpesaConfig{
			BaseURL:          getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:      getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:   getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:        getEnv("MPESA_SHORTCODE", ""),
			PassKey:          getEnv("MPESA_PASSKEY", ""),
			TransactionType:  getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			CallbackBaseURL:  getEnv("MPESA_CALLBACK_BASE_URL", ""),
			HTTPTimeout:      getSecondsEnv("MPESA_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			TokenRefreshSkew: getSecondsEnv("MPESA_TOKEN_REFRESH_SKEW_SECONDS", time.Minute),
		},
		Gateway: GatewayConfig{
			Default:           strings.ToLower(getEnv("PAYMENTS_DEFAULT_GATEWAY", "mpesa")),
			RentalsAPIBaseURL: getEnv("RENTALS_API_BASE_URL", ""),
			RentalsAPIKey:     getEnv("RENTALS_API_KEY", ""),
			RentalsAPITimeout: getSecondsEnv("RENTALS_API_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Confirmation: ConfirmationConfig{
			MaxAttempts:  getIntEnv("CONFIRMATION_MAX_ATTEMPTS", 5),
			PollInterval: getSecondsEnv("CONFIRMATION_POLL_INTERVAL_SECONDS", 5*time.Second),
			CallTimeout:  getSecondsEnv("CONFIRMATION_CALL_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			CallbackMaxAttempts:   int32(getIntEnv("PAYMENTS_CALLBACK_MAX_ATTEMPTS", 10)),
			CallbackRetryInterval: getMinutesEnv("PAYMENTS_CALLBACK_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			CallbackHTTPTimeout:   getSecondsEnv("PAYMENTS_CALLBACK_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			PendingTimeout:        getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			ReconcileStaleAfter:   getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:          int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
			PhoneCountryCode:      getEnv("PAYMENTS_PHONE_COUNTRY_CODE", "254"),
			Currency:              strings.ToUpper(getEnv("PAYMENTS_CURRENCY", "KES")),
		},
		Jobs: JobsConfig{
			ReconcileInterval:        getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			CallbackDispatchInterval: getMinutesEnv("PAYMENTS_CALLBACK_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:    getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
