package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/internal/config"
	settlementEvents "github.com/khidma/service-settlement/internal/events"
	"github.com/khidma/service-settlement/internal/handler"
	"github.com/khidma/service-settlement/internal/metrics"
	"github.com/khidma/service-settlement/internal/repository"
	"github.com/khidma/service-settlement/internal/sweeper"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/database"
	"github.com/khidma/service-settlement/pkg/health"
	"github.com/khidma/service-settlement/pkg/kafka"
	"github.com/khidma/service-settlement/pkg/logger"
	"github.com/khidma/service-settlement/pkg/middleware"
)

const serviceName = "service-settlement"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("currency", cfg.Settlement.Currency),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(repository.Models()...); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), "migrations", zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	if err := handler.RegisterValidators(); err != nil {
		zapLogger.Fatal("failed to register validators", zap.Error(err))
	}

	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.AccessTTL, cfg.JWTConfig.RefreshTTL)

	// Payment gateway: Stripe when a key is configured, mock otherwise
	var gateway adapter.PaymentGateway
	if cfg.StripeConfig.SecretKey != "" {
		gateway = adapter.NewStripeGateway(cfg.StripeConfig.SecretKey, zapLogger)
	} else {
		zapLogger.Warn("STRIPE_SECRET_KEY not set, using mock payment gateway")
		gateway = adapter.NewMockGateway(zapLogger)
	}

	// Notifications go to Kafka when brokers are configured
	var notifier adapter.Notifier = adapter.NopNotifier{}
	if cfg.KafkaConfig.Enabled() {
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
		defer producer.Close()
		notifier = adapter.NewKafkaNotifier(producer)
	}

	// Initialize application services
	uow := repository.NewGormUnitOfWork(db)
	promoService := application.NewPromoService(uow, zapLogger)
	settlementService := application.NewSettlementService(uow, promoService, gateway, notifier, cfg.Settlement, zapLogger)
	walletService := application.NewWalletService(uow, gateway, notifier, cfg.Settlement.Currency, zapLogger)
	payoutService := application.NewPayoutService(uow, notifier, cfg.Settlement, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Booking lifecycle events from upstream services
	if cfg.KafkaConfig.Enabled() {
		lifecycleConsumer := settlementEvents.NewLifecycleConsumer(
			cfg.KafkaConfig.Brokers,
			cfg.KafkaConfig.GroupID,
			settlementService,
			zapLogger,
		)
		defer lifecycleConsumer.Close()

		go func() {
			zapLogger.Info("starting booking lifecycle consumer")
			if err := lifecycleConsumer.Start(ctx); err != nil && ctx.Err() == nil {
				zapLogger.Error("booking lifecycle consumer failed", zap.Error(err))
			}
		}()
	}

	// Payment deadline sweeper, coordinated across replicas through Redis
	var locker *sweeper.RedisLocker
	if cfg.RedisConfig.URL != "" {
		redisClient, err := sweeper.NewRedisClient(cfg.RedisConfig.URL)
		if err != nil {
			zapLogger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker = sweeper.NewRedisLocker(redisClient, serviceName+":lock:", cfg.Settlement.SweepInterval)
	}
	sweep, err := newSweeper(settlementService, cfg.Settlement.SweepInterval, locker, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create sweeper", zap.Error(err))
	}
	if err := sweep.Start(ctx); err != nil {
		zapLogger.Fatal("failed to start sweeper", zap.Error(err))
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	health.NewHandler(db, serviceName).RegisterRoutes(router)
	router.GET("/metrics", metrics.Handler())

	var promoLimiter *middleware.RateLimiter
	if n := cfg.Settlement.PromoValidationsPerMinute; n > 0 {
		promoLimiter = middleware.NewRateLimiter(n, n, zapLogger)
	}

	apiV1 := router.Group("/api/v1")
	handler.NewPromoHandler(promoService, promoLimiter).RegisterRoutes(apiV1, jwtManager)
	handler.NewBookingHandler(settlementService).RegisterRoutes(apiV1, jwtManager)
	handler.NewWalletHandler(walletService).RegisterRoutes(apiV1, jwtManager)
	handler.NewPayoutHandler(payoutService).RegisterRoutes(apiV1, jwtManager)
	handler.NewAdminHandler(settlementService, payoutService, walletService).RegisterRoutes(apiV1, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + serviceName + "...")
	cancel()

	if err := sweep.Stop(); err != nil {
		zapLogger.Error("sweeper shutdown failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info(serviceName + " stopped")
}

// newSweeper avoids handing gocron a typed nil locker.
func newSweeper(expirer sweeper.Expirer, interval time.Duration, locker *sweeper.RedisLocker, logger *zap.Logger) (*sweeper.Sweeper, error) {
	if locker == nil {
		return sweeper.New(expirer, interval, nil, logger)
	}
	return sweeper.New(expirer, interval, locker, logger)
}
