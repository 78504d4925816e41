package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang-predict-settler/internal/settler/config"
	"golang-predict-settler/internal/settler/delivery/consumer"
	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/internal/settler/service"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/postgres"
	"golang-predict-settler/pkg/redis"
	"golang-predict-settler/pkg/telegram"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the settlement service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	appLogger.Info("Starting Settlement Service", zap.String("name", cfg.App.Name))

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
		appLogger.Fatal("Failed to initialize database", zap.Error(err))
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
		appLogger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Create the consumer groups if they don't exist.
	// MKSTREAM creates the stream if it doesn't exist.
	streams := []string{
		common.RedisStreamSettleTrigger,
		common.RedisStreamPointsAward,
		common.RedisStreamRedemptionRequest,
	}
	for _, stream := range streams {
		if err := redisClient.XGroupCreateMkStream(context.Background(), stream, common.RedisStreamGroup, "0").Err(); err != nil {
			if err.Error() != "BUSYGROUP Consumer Group name already exists" {
				appLogger.Fatal("Failed to create consumer group", logger.ErrorField(err), logger.Field("stream", stream))
			}
		}
	}

	// Initialize the ops notifier
	var notifier telegram.Notifier = telegram.NoopNotifier{}
	if cfg.Telegram.BotToken != "" {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", zap.Error(err))
		}
	}

	// Initialize repositories
	vendorRepo, err := repository.NewVendorRepository(cfg.Vendor, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize vendor repository", zap.Error(err))
	}

	// Initialize services
	ledgerSvc := service.NewLedgerService(db.DB, appLogger, notifier)
	sessionSvc := service.NewSessionService(db.DB, redisClient.Client, appLogger, cfg.Redis.StreamMaxLen)
	provisioner, err := service.NewSessionProvisioner(db.DB, appLogger, cfg.Settler.SessionOpenCron, cfg.Settler.SessionCutoffCron)
	if err != nil {
		appLogger.Fatal("Failed to initialize session provisioner", zap.Error(err))
	}
	settlementSvc := service.NewSettlementService(db.DB, redisClient.Client, appLogger, cfg.Redis.StreamMaxLen)
	awardSvc := service.NewAwardService(db.DB, redisClient.Client, ledgerSvc, appLogger, cfg.Settler.RewardPerWin)
	redemptionSvc := service.NewRedemptionService(db.DB, redisClient.Client, ledgerSvc, vendorRepo, appLogger)
	outboxSvc := service.NewOutboxService(db.DB, redisClient.Client, appLogger, cfg.Outbox.BatchSize, cfg.Outbox.PublishPerSecond, cfg.Redis.StreamMaxLen)

	// Initialize and start the Redis consumer
	redisConsumer := consumer.NewRedisConsumer(cfg, redisClient.Client, settlementSvc, awardSvc, redemptionSvc, sessionSvc, provisioner, outboxSvc, appLogger)
	redisConsumer.Start(ctx)

	appLogger.Info("Settlement service started. Waiting for tasks...")

	// Wait for interrupt signal to gracefully shut down the service
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down settlement service...")
	cancel()
	redisConsumer.Stop()
	appLogger.Info("Settlement service stopped.")
}

func main() {
	rootCmd := &cobra.Command{Use: "settlement-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-settlement.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing settlement-service CLI: %s\n", err)
		os.Exit(1)
	}
}
