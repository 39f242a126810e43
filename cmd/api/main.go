package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/medlinkhq/medsupply-backend/api/routes"
	"github.com/medlinkhq/medsupply-backend/internal/audit"
	"github.com/medlinkhq/medsupply-backend/internal/carts"
	"github.com/medlinkhq/medsupply-backend/internal/inventory"
	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/internal/payments"
	"github.com/medlinkhq/medsupply-backend/internal/pricing"
	"github.com/medlinkhq/medsupply-backend/internal/settings"
	payherewebhook "github.com/medlinkhq/medsupply-backend/internal/webhooks/payhere"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/migrate"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
	"github.com/medlinkhq/medsupply-backend/pkg/redis"
)

const (
	shutdownTimeout = 15 * time.Second
	notifyGuardTTL  = 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()

	auditService, err := audit.NewService(gormDB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	inventoryService, err := inventory.NewService(gormDB)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	pricingService, err := pricing.NewService(pricing.NewRepository(gormDB), cfg.Pricing, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}

	cartsService, err := carts.NewService(carts.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create carts service", err)
		os.Exit(1)
	}

	settingsService, err := settings.NewService(gormDB, cfg.Settings.CacheTTL, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	var checkout orders.CheckoutPreparer
	if cfg.PayHere.MerchantID != "" {
		builder, err := payherewebhook.NewCheckoutBuilder(cfg.PayHere)
		if err != nil {
			logg.Error(context.Background(), "failed to create checkout builder", err)
			os.Exit(1)
		}
		checkout = builder
	} else {
		logg.Warn(context.Background(), "payhere merchant not configured, gateway checkout disabled")
	}

	ordersService, err := orders.NewService(orders.Deps{
		Repo:      orders.NewRepository(gormDB),
		Tx:        dbClient,
		Inventory: inventoryService,
		Pricing:   pricingService,
		Carts:     cartsService,
		Settings:  settingsService,
		Outbox:    outboxService,
		Checkout:  checkout,
		Audit:     auditService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsRepo := payments.NewRepository(gormDB)
	paymentsService, err := payments.NewService(paymentsRepo, dbClient, outboxService, payments.Deps{
		Credit: pricingService,
		Audit:  auditService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	notifyGuard, err := payherewebhook.NewIdempotencyGuard(redisClient, notifyGuardTTL, "payhere-notify")
	if err != nil {
		logg.Error(context.Background(), "failed to create notify guard", err)
		os.Exit(1)
	}

	payhereService, err := payherewebhook.NewService(payherewebhook.ServiceParams{
		Config:            cfg.PayHere,
		Orders:            ordersService,
		Payments:          paymentsService,
		PaymentsRepo:      paymentsRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Guard:             notifyGuard,
		Audit:             auditService,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payhere webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			cartsService,
			ordersService,
			paymentsService,
			payhereService,
		),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
