package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shopfront/payment-service/internal/app"
	"github.com/shopfront/payment-service/internal/config"
	"github.com/shopfront/payment-service/internal/db"
	"github.com/shopfront/payment-service/internal/http/routes"
	"github.com/shopfront/payment-service/internal/kafka"
	"github.com/shopfront/payment-service/internal/metrics"
	"github.com/shopfront/payment-service/internal/repository"
	"github.com/shopfront/payment-service/internal/services"
	"github.com/shopfront/payment-service/internal/stripe"
	"github.com/shopfront/payment-service/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.New(logger.INFO)

	log.Infow("Payment service starting up...")

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	log = logger.New(logger.ParseLevel(cfg.Logging.Level))

	if cfg.Auth.JWTSecret == "" {
		log.Warnw("JWT secret is not set, all authenticated requests will fail")
	}
	if cfg.Stripe.APIKey == "" {
		log.Warnw("Stripe API key is not set")
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключаемся к базе данных
	dbClient, err := db.NewDBClient(ctx, cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Errorw("Error closing database connection", "error", err)
		}
	}()
	log.Infow("Database connection established")

	// Инициализируем Redis кеш (не фатально при недоступности)
	var methodCache services.MethodCache
	redisCache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
	} else {
		log.Infow("Redis cache initialized")
		methodCache = redisCache
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Errorw("Error closing Redis connection", "error", err)
			}
		}()
	}

	customerRepo := repository.NewCustomerRepository(dbClient.DB(), log)
	methodRepo := repository.NewPaymentMethodRepository(dbClient.Pool(), log)

	stripeClient := stripe.NewStripeClient(cfg.Stripe.APIKey, log)

	// Kafka: создаем топики и продюсер; события не критичны для основного флоу
	var kafkaProducer kafka.Producer
	if err := kafka.EnsureKafkaTopics(cfg.Kafka.Brokers, log); err != nil {
		log.Errorw("Failed to ensure Kafka topics, continuing without event publishing", "error", err)
	} else if kafkaProducer, err = kafka.NewKafkaProducer(cfg.Kafka.Brokers, log); err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		kafkaProducer = nil
	} else {
		log.Infow("Kafka producer initialized")
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				log.Errorw("Error closing Kafka producer", "error", err)
			}
		}()
	}

	// Метрики
	registry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(registry, log)
	systemMetrics := metrics.NewSystemMetrics(registry, log)
	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	methodsService := services.NewPaymentMethodsService(
		customerRepo,
		methodRepo,
		methodCache,
		stripeClient,
		kafkaProducer,
		paymentMetrics,
		log,
	)

	application := app.NewApp(cfg, methodsService, dbClient, log)

	router := gin.New()
	routes.SetupRoutes(router, application, registry, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Infow("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	log.Infow("Cleanup finished. Goodbye!")
}
