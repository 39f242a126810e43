package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/carts"
	"github.com/medlinkhq/medsupply-backend/internal/cron"
	"github.com/medlinkhq/medsupply-backend/internal/inventory"
	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/internal/pricing"
	"github.com/medlinkhq/medsupply-backend/internal/settings"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/metrics"
	"github.com/medlinkhq/medsupply-backend/pkg/migrate"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
	"github.com/medlinkhq/medsupply-backend/pkg/redis"
)

const lockKeyFormat = "ms:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
	ordersRepo := orders.NewRepository(gormDB)
	cartsRepo := carts.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)

	ordersService, err := buildOrdersService(gormDB, dbClient, ordersRepo, cartsRepo, outboxService, cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentWindowJob, err := cron.NewPaymentWindowJob(cron.PaymentWindowJobParams{
		Logger: logg,
		Reader: ordersRepo,
		Orders: ordersService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment window job", err)
		os.Exit(1)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	cartCleanupJob, err := cron.NewCartCleanupJob(cron.CartCleanupJobParams{
		Logger: logg,
		Carts:  cartsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart cleanup job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(paymentWindowJob, outboxRetentionJob, cartCleanupJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "cron-worker",
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildOrdersService wires the full orchestrator so expired orders go through
// the regular cancel transition, releasing stock and emitting events.
func buildOrdersService(
	gormDB *gorm.DB,
	dbClient *db.Client,
	ordersRepo orders.Repository,
	cartsRepo carts.Repository,
	outboxService *outbox.Service,
	cfg *config.Config,
	logg *logger.Logger,
) (orders.Service, error) {
	inventoryService, err := inventory.NewService(gormDB)
	if err != nil {
		return nil, err
	}
	pricingService, err := pricing.NewService(pricing.NewRepository(gormDB), cfg.Pricing, nil)
	if err != nil {
		return nil, err
	}
	cartsService, err := carts.NewService(cartsRepo)
	if err != nil {
		return nil, err
	}
	settingsService, err := settings.NewService(gormDB, cfg.Settings.CacheTTL, nil)
	if err != nil {
		return nil, err
	}
	return orders.NewService(orders.Deps{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Inventory: inventoryService,
		Pricing:   pricingService,
		Carts:     cartsService,
		Settings:  settingsService,
		Outbox:    outboxService,
		Logger:    logg,
	})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
