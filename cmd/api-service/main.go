package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-predict-settler/internal/api/config"
	delivery "golang-predict-settler/internal/api/delivery/http"
	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/internal/settler/service"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/postgres"
	"golang-predict-settler/pkg/ratelimit"
	"golang-predict-settler/pkg/redis"
	"golang-predict-settler/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the api service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting API Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Initialize the ops notifier
	var notifier telegram.Notifier = telegram.NoopNotifier{}
	if cfg.Telegram.BotToken != "" {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize repositories and services
	vendorRepo, err := repository.NewVendorRepository(cfg.Vendor, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize vendor repository", logger.ErrorField(err))
	}

	ledgerSvc := service.NewLedgerService(db.DB, appLogger, notifier)
	sessionSvc := service.NewSessionService(db.DB, redisClient.Client, appLogger, cfg.Redis.StreamMaxLen)
	revisionSvc := service.NewRevisionService(db.DB, redisClient.Client, ledgerSvc, appLogger, notifier, cfg.Settler.RewardPerWin, cfg.Redis.StreamMaxLen)
	redemptionSvc := service.NewRedemptionService(db.DB, redisClient.Client, ledgerSvc, vendorRepo, appLogger)

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisBucketStore(redisClient.Client), int64(cfg.RateLimit.MaxPerMinute))

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	// Initialize handlers and routes
	apiV1 := e.Group("/api/v1")

	snapshotHandler := delivery.NewSnapshotHandler(revisionSvc, appLogger)
	snapshotHandler.RegisterRoutes(apiV1.Group("/snapshots"))

	sessionHandler := delivery.NewSessionHandler(sessionSvc, ledgerSvc, appLogger)
	sessionHandler.RegisterRoutes(apiV1.Group("/sessions"))
	sessionHandler.RegisterBalanceRoutes(apiV1.Group("/users"))

	triggerHandler := delivery.NewTriggerHandler(redisClient.Client, limiter, appLogger, cfg.Redis.StreamMaxLen)
	triggerHandler.RegisterRoutes(apiV1.Group("/settlements"))

	redemptionHandler := delivery.NewRedemptionHandler(redemptionSvc, redisClient.Client, limiter, appLogger, cfg.Redis.StreamMaxLen)
	redemptionHandler.RegisterRoutes(apiV1.Group("/redemptions"))

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	// Gracefully shutdown the server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "api-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-api.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing api-service CLI: %s\n", err)
		os.Exit(1)
	}
}
