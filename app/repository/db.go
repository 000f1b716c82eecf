package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to MySQL or SQLite. SQLite databases are limited to a single
// connection and get their schema created on open.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*sql.DB, error) {
	switch driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		if err := MigrateSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			caller_service TEXT NOT NULL,
			payer_phone TEXT NOT NULL,
			unit_reference TEXT NOT NULL,
			billing_period TEXT,
			narrative TEXT NOT NULL DEFAULT '',
			amount_units INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status INTEGER NOT NULL,
			gateway TEXT NOT NULL,
			checkout_request_id TEXT,
			merchant_request_id TEXT,
			submitted_at DATETIME,
			receipt_reference TEXT,
			confirmed_amount INTEGER,
			failure_reason TEXT,
			poll_attempts INTEGER NOT NULL DEFAULT 0,
			callback_hash TEXT NOT NULL,
			status_callback_url TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			callback_delivery_status INTEGER NOT NULL DEFAULT 0,
			callback_delivery_attempts INTEGER NOT NULL DEFAULT 0,
			callback_delivery_next_at DATETIME,
			callback_delivery_last_error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (caller_service, request_id),
			UNIQUE (callback_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status_updated ON payments(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_callback_due ON payments(callback_delivery_status, callback_delivery_next_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_unit_period ON payments(unit_reference, billing_period)`,
		`CREATE TABLE IF NOT EXISTS payment_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payment_id INTEGER NOT NULL REFERENCES payments(id),
			event_type TEXT NOT NULL,
			old_status INTEGER,
			new_status INTEGER NOT NULL,
			gateway_ref TEXT,
			payload_json TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_events_payment ON payment_events(payment_id)`,
		`CREATE TABLE IF NOT EXISTS payment_callbacks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payment_id INTEGER REFERENCES payments(id),
			gateway TEXT NOT NULL,
			callback_hash TEXT NOT NULL,
			checkout_request_id TEXT,
			result_code TEXT,
			payload_json TEXT NOT NULL,
			status INTEGER NOT NULL,
			error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_callbacks_hash ON payment_callbacks(callback_hash)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration failed: %w", err)
		}
	}
	return nil
}
