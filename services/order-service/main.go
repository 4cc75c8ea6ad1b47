package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awspkg "github.com/Mark23Dev/project-nexus/pkg/aws"
	"github.com/Mark23Dev/project-nexus/pkg/metrics"
	apperrors "github.com/Mark23Dev/project-nexus/services/common/errors"
	applogger "github.com/Mark23Dev/project-nexus/services/common/logger"
	commonmw "github.com/Mark23Dev/project-nexus/services/common/middleware"
	"github.com/Mark23Dev/project-nexus/services/order-service/cache"
	"github.com/Mark23Dev/project-nexus/services/order-service/controllers"
	"github.com/Mark23Dev/project-nexus/services/order-service/database"
	"github.com/Mark23Dev/project-nexus/services/order-service/events"
	"github.com/Mark23Dev/project-nexus/services/order-service/kafka"
	"github.com/Mark23Dev/project-nexus/services/order-service/middleware"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/Mark23Dev/project-nexus/services/order-service/routes"
	"github.com/Mark23Dev/project-nexus/services/order-service/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "order-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	// --- AWS setup ---
	awsCfg, err := awspkg.LoadAWSConfig(context.Background())
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	// --- Logger ---
	var cwLogs *awspkg.CloudWatchLogsClient
	if cfg.CloudWatchEnabled {
		cwLogs, err = awspkg.NewCloudWatchLogsClient(context.Background(), awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch Logs unavailable, logging to stdout only: %v", err)
			cwLogs = nil
		}
	}
	logger, err := newLogger(cfg.AppEnv, cwLogs)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// --- Database ---
	db, err := database.ConnectPostgres(context.Background(), database.PostgresConfig{
		Host:        cfg.PostgresHost,
		Port:        cfg.PostgresPort,
		User:        cfg.PostgresUser,
		Password:    cfg.PostgresPassword,
		DBName:      cfg.PostgresDB,
		SSLMode:     cfg.PostgresSSLMode,
		TimeZone:    cfg.PostgresTimeZone,
		LockTimeout: cfg.LockTimeout,
	}, logger, &models.Product{}, &models.Order{}, &models.OrderItem{}, &models.OutboxEvent{})
	if err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}

	// --- Catalog cache ---
	var catalogCache cache.Cache = cache.NewMemoryCache()
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, using in-process catalog cache", zap.Error(err))
		} else {
			catalogCache = cache.NewRedisCache(redisClient, "order-service:catalog")
		}
	}

	// --- Metrics ---
	promMetrics := metrics.NewServerMetrics("marketplace", "order_service", prometheus.NewRegistry())
	metricsClient := awspkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.CloudWatchEnabled)

	// --- Domain events ---
	dispatcher := events.NewDispatcher(logger)
	dispatcher.Subscribe(events.NewLogHandler(logger))
	if cfg.OrderSNSTopicARN != "" {
		dispatcher.Subscribe(events.NewSNSHandler(awspkg.NewSNSClient(awsCfg), cfg.OrderSNSTopicARN))
	}
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, logger)
		dispatcher.Subscribe(events.NewKafkaHandler(producer))
	}
	if metricsClient.IsEnabled() {
		dispatcher.Subscribe(events.NewMetricsHandler(metricsClient, serviceName))
	}
	relay := events.NewRelay(repository.NewGormOutboxRepository(db), dispatcher, cfg.OutboxPollInterval, logger)
	logger.Info("Event handlers registered", zap.Strings("handlers", dispatcher.Handlers()))

	// --- Dependency injection ---
	orderRepo := repository.NewGormOrderRepository(db)
	productRepo := repository.NewGormProductRepository(db)

	var priceSource services.PriceSource = services.NewCatalogPriceSource(productRepo)
	if cfg.PriceSource == "http" {
		priceSource = services.NewHTTPPriceSource(cfg.ProductServiceURL, cfg.PriceLookupTimeout)
	}

	var identity middleware.IdentityProvider = middleware.GatewayIdentityProvider{}
	if cfg.AuthMode == "jwt" {
		identity = middleware.NewJWTIdentityProvider(cfg.JWTSecret)
	}

	orderService := services.NewOrderService(orderRepo, priceSource, cfg.PriceLookupTimeout, relay, promMetrics, logger)
	productService := services.NewProductService(productRepo, catalogCache, cfg.CacheTTL, logger)

	orderController := controllers.NewOrderController(orderService)
	productController := controllers.NewProductController(productService)

	// --- HTTP router ---
	rateLimiter := commonmw.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(applogger.RequestID())
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(promMetrics.Middleware())
	r.Use(commonmw.MetricsMiddleware(metricsClient, serviceName))
	r.Use(commonmw.RequestLogger(logger))
	r.Use(apperrors.ErrorMiddleware())
	r.Use(commonmw.RateLimitMiddleware(rateLimiter))
	r.Use(commonmw.Timeout(cfg.RequestTimeout))

	routes.RegisterOrderRoutes(r, orderController, identity)
	routes.RegisterProductRoutes(r, productController, identity)

	r.GET("/health", func(c *gin.Context) {
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED", "service": serviceName})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})
	r.GET("/metrics", gin.WrapH(promMetrics.Handler()))

	// --- Background workers ---
	bgCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(bgCtx)
		}()
	}
	startWorker(relay.Run)
	startWorker(rateLimiter.Run)
	if cfg.ProductEventsQueueURL != "" {
		consumer := services.NewProductEventConsumer(
			awspkg.NewSQSConsumer(awsCfg, cfg.ProductEventsQueueURL, logger),
			productService, metricsClient, logger,
		)
		startWorker(consumer.Start)
	}

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("Order Service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Initiating graceful shutdown...")
	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	stopWorkers()
	workers.Wait()

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("Kafka producer close error", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := database.Close(db); err != nil {
		logger.Error("Database close error", zap.Error(err))
	}

	logger.Info("Order Service stopped gracefully")
}

func newLogger(env string, cwLogs *awspkg.CloudWatchLogsClient) (*zap.Logger, error) {
	if cwLogs == nil {
		return applogger.New(env, nil)
	}
	return applogger.New(env, cwLogs)
}
