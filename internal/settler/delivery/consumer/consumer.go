package consumer

import (
	"context"
	"sync"
	"time"

	"golang-predict-settler/internal/settler/config"
	"golang-predict-settler/internal/settler/service"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisConsumer manages the stream consumers and ticker loops of the
// settlement service.
type RedisConsumer struct {
	cfg               *config.Config
	redisClient       *redis.Client
	settlementService service.SettlementService
	awardService      service.AwardService
	redemptionService service.RedemptionService
	sessionService    service.SessionService
	provisioner       service.SessionProvisioner
	outboxService     service.OutboxService
	logger            *logger.Logger
	stopChan          chan struct{}
	wg                sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	settlementService service.SettlementService,
	awardService service.AwardService,
	redemptionService service.RedemptionService,
	sessionService service.SessionService,
	provisioner service.SessionProvisioner,
	outboxService service.OutboxService,
	log *logger.Logger,
) *RedisConsumer {
	return &RedisConsumer{
		cfg:               cfg,
		redisClient:       redisClient,
		settlementService: settlementService,
		awardService:      awardService,
		redemptionService: redemptionService,
		sessionService:    sessionService,
		provisioner:       provisioner,
		outboxService:     outboxService,
		logger:            log,
		stopChan:          make(chan struct{}),
	}
}

// Start begins the consumer's processing loops.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Redis consumer started")
	c.RegisterStreamHandler(ctx, c.settlementService.ProcessTrigger, common.RedisStreamSettleTrigger, c.cfg.Settler.RedisStreamSettleTimeout)
	c.RegisterStreamHandler(ctx, c.awardService.ProcessTask, common.RedisStreamPointsAward, c.cfg.Settler.RedisStreamAwardTimeout)
	c.RegisterStreamHandler(ctx, c.redemptionService.ProcessTask, common.RedisStreamRedemptionRequest, c.cfg.Settler.RedisStreamRedemptionTimeout)

	c.RegisterTickerHandler(ctx, c.provisioner.EnsureSession, c.cfg.Settler.SessionFlipInterval, c.cfg.Settler.SessionFlipTimeout, "session-provision")
	c.RegisterTickerHandler(ctx, c.sessionService.FlipDueSessions, c.cfg.Settler.SessionFlipInterval, c.cfg.Settler.SessionFlipTimeout, "session-flip")
	c.RegisterTickerHandler(ctx, c.outboxService.PublishPending, c.cfg.Outbox.PollInterval, c.cfg.Outbox.PollTimeout, "outbox-publish")
}

func (c *RedisConsumer) RegisterStreamHandler(ctx context.Context, fn func(ctx context.Context), streamName string, timeout time.Duration) {
	c.logger.Info("Registering stream handler", logger.Field("stream", streamName))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Stream handler stopping due to context cancellation", logger.Field("stream", streamName))
				return
			case <-c.stopChan:
				c.logger.Info("Stream handler stopping", logger.Field("stream", streamName))
				return
			default:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			}
		}
	})
}

func (c *RedisConsumer) RegisterTickerHandler(ctx context.Context, fn func(ctx context.Context), interval time.Duration, timeout time.Duration, name string) {
	c.logger.Info("Registering ticker handler",
		logger.Field("name", name),
		logger.Field("interval", interval),
		logger.Field("timeout", timeout))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			case <-ctx.Done():
				c.logger.Info("Ticker handler stopping due to context cancellation", logger.Field("name", name))
				return
			case <-c.stopChan:
				c.logger.Info("Ticker handler stopping", logger.Field("name", name))
				return
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Redis consumer stopped")
}
