package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresDSN(t *testing.T) {
	unsetEnv(t, "DB_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing DB_DSN")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setEnv(t, "DB_DSN", "file::memory:")
	setEnv(t, "DB_DRIVER", "postgres")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unsupported DB_DRIVER")
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "DB_DSN", "root:root@tcp(localhost:3306)/rent_payments?parseTime=true")
	unsetEnv(t, "DB_DRIVER")
	unsetEnv(t, "CONFIRMATION_MAX_ATTEMPTS")
	unsetEnv(t, "CONFIRMATION_POLL_INTERVAL_SECONDS")
	unsetEnv(t, "CONFIRMATION_CALL_TIMEOUT_SECONDS")
	unsetEnv(t, "PAYMENTS_DEFAULT_GATEWAY")
	unsetEnv(t, "PAYMENTS_PHONE_COUNTRY_CODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Fatalf("expected mysql driver, got %s", cfg.Database.Driver)
	}
	if cfg.Confirmation.MaxAttempts != 5 || cfg.Confirmation.PollInterval != 5*time.Second || cfg.Confirmation.CallTimeout != 10*time.Second {
		t.Fatalf("unexpected confirmation defaults: %+v", cfg.Confirmation)
	}
	if cfg.Gateway.Default != "mpesa" {
		t.Fatalf("expected mpesa default gateway, got %s", cfg.Gateway.Default)
	}
	if cfg.Payments.PhoneCountryCode != "254" || cfg.Payments.Currency != "KES" {
		t.Fatalf("unexpected payments locale: %+v", cfg.Payments)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, "DB_DSN", "file:rent.db")
	setEnv(t, "DB_DRIVER", "SQLite")
	setEnv(t, "APP_SERVICE_NAME", "rent-payments-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "GRPC_PORT", "9191")
	setEnv(t, "DB_MAX_OPEN_CONNS", "20")
	setEnv(t, "DB_MAX_IDLE_CONNS", "8")
	setEnv(t, "DB_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "MPESA_SHORTCODE", "174379")
	setEnv(t, "MPESA_CALLBACK_BASE_URL", "https://rent.example.com/webhooks/gateways/mpesa")
	setEnv(t, "MPESA_TOKEN_REFRESH_SKEW_SECONDS", "90")
	setEnv(t, "PAYMENTS_DEFAULT_GATEWAY", "Mock")
	setEnv(t, "CONFIRMATION_MAX_ATTEMPTS", "8")
	setEnv(t, "CONFIRMATION_POLL_INTERVAL_SECONDS", "3")
	setEnv(t, "PAYMENTS_CALLBACK_MAX_ATTEMPTS", "5")
	setEnv(t, "PAYMENTS_CALLBACK_RETRY_INTERVAL_MINUTES", "7")
	setEnv(t, "PAYMENTS_PENDING_TIMEOUT_MINUTES", "11")
	setEnv(t, "PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "PAYMENTS_JOB_BATCH_SIZE", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "rent-payments-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" || cfg.GRPC.Port != "9191" {
		t.Fatalf("unexpected ports: http=%s grpc=%s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected driver: %s", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 20 || cfg.Database.MaxIdleConns != 8 {
		t.Fatalf("unexpected pool config: %+v", cfg.Database)
	}
	if cfg.Database.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected conn lifetime: %v", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Mpesa.ShortCode != "174379" || cfg.Mpesa.TokenRefreshSkew != 90*time.Second {
		t.Fatalf("unexpected mpesa config: %+v", cfg.Mpesa)
	}
	if cfg.Gateway.Default != "mock" {
		t.Fatalf("unexpected default gateway: %s", cfg.Gateway.Default)
	}
	if cfg.Confirmation.MaxAttempts != 8 || cfg.Confirmation.PollInterval != 3*time.Second {
		t.Fatalf("unexpected confirmation config: %+v", cfg.Confirmation)
	}
	if cfg.Payments.CallbackMaxAttempts != 5 {
		t.Fatalf("unexpected callback max attempts: %d", cfg.Payments.CallbackMaxAttempts)
	}
	if cfg.Payments.CallbackRetryInterval != 7*time.Minute {
		t.Fatalf("unexpected callback retry interval: %v", cfg.Payments.CallbackRetryInterval)
	}
	if cfg.Payments.PendingTimeout != 11*time.Minute {
		t.Fatalf("unexpected pending timeout: %v", cfg.Payments.PendingTimeout)
	}
	if cfg.Payments.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Payments.ReconcileStaleAfter)
	}
	if cfg.Payments.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Payments.JobBatchSize)
	}
}
