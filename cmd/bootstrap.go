package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rent-payments/app/confirmation"
	"github.com/vibast-solutions/ms-go-rent-payments/app/gateway"
	"github.com/vibast-solutions/ms-go-rent-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rent-payments/app/service"
	"github.com/vibast-solutions/ms-go-rent-payments/config"
)

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func newGatewayRegistry(cfg *config.Config) *gateway.Registry {
	return gateway.NewRegistry(
		cfg.Gateway.Default,
		gateway.NewMpesaGateway(gateway.MpesaConfig{
			BaseURL:          cfg.Mpesa.BaseURL,
			ConsumerKey:      cfg.Mpesa.ConsumerKey,
			ConsumerSecret:   cfg.Mpesa.ConsumerSecret,
			ShortCode:        cfg.Mpesa.ShortCode,
			PassKey:          cfg.Mpesa.PassKey,
			TransactionType:  cfg.Mpesa.TransactionType,
			CallbackBaseURL:  cfg.Mpesa.CallbackBaseURL,
			HTTPTimeout:      cfg.Mpesa.HTTPTimeout,
			TokenRefreshSkew: cfg.Mpesa.TokenRefreshSkew,
		}),
		gateway.NewRentalsAPIGateway(gateway.RentalsAPIConfig{
			BaseURL:     cfg.Gateway.RentalsAPIBaseURL,
			APIKey:      cfg.Gateway.RentalsAPIKey,
			HTTPTimeout: cfg.Gateway.RentalsAPITimeout,
		}),
		gateway.NewMockGateway(),
	)
}

func confirmationPolicy(cfg *config.Config) confirmation.Policy {
	return confirmation.Policy{
		MaxAttempts:  cfg.Confirmation.MaxAttempts,
		PollInterval: cfg.Confirmation.PollInterval,
		CallTimeout:  cfg.Confirmation.CallTimeout,
	}
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg := mustLoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, repository.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logrus.WithError(err).WithField("driver", cfg.Database.Driver).Fatal("Failed to open database")
	}

	paymentService := service.NewPaymentService(
		repository.NewPaymentRepository(db),
		repository.NewPaymentEventRepository(db),
		repository.NewPaymentCallbackRepository(db),
		newGatewayRegistry(cfg),
		confirmationPolicy(cfg),
		cfg.Payments,
		cfg.App.APIKey,
	)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := paymentService.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Confirmation runs did not finish before shutdown")
		}
		closeDB(db)
	}

	return cfg, paymentService, cleanup
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close database")
	}
}
