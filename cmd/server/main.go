package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpAdapter "github.com/iho/creditledger/internal/adapter/http"
	"github.com/iho/creditledger/internal/adapter/http/handler"
	postgresRepo "github.com/iho/creditledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/creditledger/internal/adapter/repository/redis"
	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/infrastructure/config"
	"github.com/iho/creditledger/internal/infrastructure/logger"
	"github.com/iho/creditledger/internal/infrastructure/metrics"
	"github.com/iho/creditledger/internal/infrastructure/postgres"
	"github.com/iho/creditledger/internal/infrastructure/redis"
	"github.com/iho/creditledger/internal/scheduler"
	"github.com/iho/creditledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()

	if err := postgres.RunMigrations(log, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Repositories
	txManager := postgresRepo.NewTxManager(pool)
	retrier := postgresRepo.NewRetrier(log)
	eventStore := postgresRepo.NewEventStore(pool, txManager, retrier)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool, txManager, retrier)
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)
	idGen := postgresRepo.NewULIDGenerator()

	defaultPrice, err := domain.NewPriceOfOneBTC(cfg.DefaultBTCPriceCents)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid default BTC price")
	}
	priceStore := redisRepo.NewPriceStore(redisClient, cfg.PriceTTL, defaultPrice)

	var upgradeBuffer *domain.CVLPct
	if cfg.CVLUpgradeBufferPct > 0 {
		buf := domain.NewCVLPct(cfg.CVLUpgradeBufferPct)
		upgradeBuffer = &buf
	}

	// Use cases
	facilityUC := usecase.NewCreditFacilityUseCase(
		eventStore,
		ledgerRepo,
		priceStore,
		idGen,
		usecase.NewClock(),
		upgradeBuffer,
		usecase.WithMetrics(m),
	)

	// Handlers
	facilityHandler := handler.NewFacilityHandler(facilityUC, m)
	healthHandler := handler.NewHealthHandler(pool, redisClient)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		FacilityHandler:  facilityHandler,
		HealthHandler:    healthHandler,
		IdempotencyStore: idempotencyStore,
		Metrics:          m,
		Logger:           log,
	})

	// Accrual scheduler
	var accrualScheduler *scheduler.AccrualScheduler
	if cfg.SchedulerEnabled {
		accrualScheduler = scheduler.NewAccrualScheduler(facilityUC, usecase.NewClock(), log, m, cfg.AccrualCronSpec)
		if err := accrualScheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start accrual scheduler")
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if accrualScheduler != nil {
		<-accrualScheduler.Stop().Done()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
