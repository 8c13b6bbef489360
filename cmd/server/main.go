package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/client"
	"github.com/stockwatch/alert-composer/internal/config"
	"github.com/stockwatch/alert-composer/internal/events"
	"github.com/stockwatch/alert-composer/internal/handler"
	"github.com/stockwatch/alert-composer/internal/logger"
	"github.com/stockwatch/alert-composer/internal/middleware"
	"github.com/stockwatch/alert-composer/internal/service"
	"github.com/stockwatch/alert-composer/internal/session"
)

func main() {
	// .env is optional and only fills unset variables
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	zapLogger := logger.New(cfg.Logging)
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client (if configured)
	var store catalog.Store
	if redisClient := connectToRedis(ctx, cfg.Redis, zapLogger); redisClient != nil {
		defer redisClient.Close()
		store = redisClient
	}

	// Initialize clients
	backendClient := client.NewBackendClient(cfg.Backend.URL, cfg.Backend.Timeout, zapLogger)
	catalogLoader := catalog.NewLoader(backendClient, store, catalog.CacheConfig{
		Enabled:   cfg.Redis.Cache.Enabled,
		TTL:       cfg.Redis.Cache.TTL,
		PrefixKey: cfg.Redis.Cache.PrefixKey,
	}, zapLogger)

	// Initialize event publishing
	publisher := setupPublisher(cfg.Kafka, zapLogger)
	dispatcher := events.NewDispatcher(publisher, cfg.Kafka.QueueSize, cfg.Kafka.PublishTimeout, zapLogger)
	go dispatcher.Run(ctx)

	// Initialize form sessions
	sessions := session.NewStore(catalogLoader, session.Config{
		TTL:           cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		LoadTimeout:   cfg.Sessions.LoadTimeout,
	}, zapLogger)
	go sessions.Run(ctx)

	// Initialize services
	alertService := service.NewAlertService(backendClient, sessions, dispatcher, zapLogger)

	// Initialize handlers
	formHandler := handler.NewFormHandler(alertService, zapLogger)
	alertHandler := handler.NewAlertHandler(alertService, zapLogger)
	catalogHandler := handler.NewCatalogHandler(catalogLoader, backendClient, zapLogger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	go forgetIdleClients(ctx, limiter, cfg.Sessions.SweepInterval)

	// Set up HTTP server with Gin
	router := handler.SetupRouter(formHandler, alertHandler, catalogHandler, limiter, cfg.Auth.JWTSecret, zapLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		zapLogger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	// Create a deadline for server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop background work, then flush queued events
	cancel()
	sessions.Wait()
	select {
	case <-dispatcher.Done():
	case <-shutdownCtx.Done():
		zapLogger.Warn("Event queue not drained before shutdown deadline")
	}
	if err := publisher.Close(); err != nil {
		zapLogger.Error("Failed to close event publisher", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}

// connectToRedis returns nil when Redis is not configured or unreachable;
// the catalog is then loaded from the backend on every miss.
func connectToRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, running without catalog cache")
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(pingCtx).Result(); err != nil {
		logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		_ = redisClient.Close()
		return nil
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr))
	return redisClient
}

// setupPublisher returns a Kafka publisher, or a no-op one when no brokers are configured
func setupPublisher(cfg config.KafkaConfig, logger *zap.Logger) events.Publisher {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		logger.Info("Kafka not configured, alert events are discarded")
		return events.NoopPublisher{}
	}

	logger.Info("Publishing alert events", zap.Strings("brokers", brokers))
	return events.NewKafkaPublisher(events.Config{
		Brokers:      brokers,
		ClientID:     cfg.ClientID,
		Topics:       cfg.EventTopics(),
		DefaultTopic: cfg.DefaultTopic,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
}

// forgetIdleClients drops rate limiter state of owners idle for longer than an hour
func forgetIdleClients(ctx context.Context, limiter *middleware.RateLimiter, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Forget(time.Hour)
		}
	}
}
