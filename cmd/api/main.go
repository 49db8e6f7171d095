package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/mfigueroa/bazario-backend/api/routes"
	"github.com/mfigueroa/bazario-backend/internal/analytics"
	cartsvc "github.com/mfigueroa/bazario-backend/internal/cart"
	checkoutsvc "github.com/mfigueroa/bazario-backend/internal/checkout"
	"github.com/mfigueroa/bazario-backend/internal/coupons"
	orderssvc "github.com/mfigueroa/bazario-backend/internal/orders"
	payoutssvc "github.com/mfigueroa/bazario-backend/internal/payouts"
	"github.com/mfigueroa/bazario-backend/internal/pricing"
	"github.com/mfigueroa/bazario-backend/internal/products"
	"github.com/mfigueroa/bazario-backend/internal/vendors"
	"github.com/mfigueroa/bazario-backend/pkg/config"
	"github.com/mfigueroa/bazario-backend/pkg/db"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/migrate"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/redis"
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

	productRepo := products.NewRepository(dbClient.DB())
	vendorRepo := vendors.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	pricer := pricing.NewEngine(cfg.Pricing)

	couponService, err := coupons.NewService(coupons.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon service", err)
		os.Exit(1)
	}

	cartService, err := cartsvc.NewService(cartsvc.NewRepository(dbClient.DB()), productRepo, couponService, pricer)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(
		dbClient,
		checkoutsvc.NewRepository(),
		cartsvc.NewRepository(dbClient.DB()),
		productRepo,
		vendorRepo,
		couponService,
		pricer,
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ordersService, err := orderssvc.NewService(orderssvc.NewRepository(dbClient.DB()), dbClient, productRepo, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	payoutsService, err := payoutssvc.NewService(
		payoutssvc.NewRepository(dbClient.DB()),
		dbClient,
		vendorRepo,
		payoutssvc.NewLoggingProvider(logg),
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(analytics.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
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
			cartService,
			checkoutService,
			ordersService,
			payoutsService,
			analyticsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
