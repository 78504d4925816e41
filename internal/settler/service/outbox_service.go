package service

import (
	"context"
	"time"

	"golang-predict-settler/internal/settler/repository"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// OutboxService delivers unpublished outbox rows to the downstream events
// stream, at-least-once. A crash between send and flag update causes a
// redelivery; consumers dedup on event_id.
type OutboxService interface {
	PublishPending(ctx context.Context)
}

// NewOutboxService creates the outbox publisher. publishPerSecond bounds
// delivery throughput so a large backlog cannot saturate Redis.
func NewOutboxService(db *gorm.DB, redisClient *goredis.Client, log *logger.Logger, batchSize int, publishPerSecond float64, streamMaxLen int64) OutboxService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if publishPerSecond <= 0 {
		publishPerSecond = 200
	}
	return &outboxService{
		db:           db,
		redisClient:  redisClient,
		logger:       log,
		batchSize:    batchSize,
		limiter:      rate.NewLimiter(rate.Limit(publishPerSecond), 1),
		streamMaxLen: streamMaxLen,
	}
}

type outboxService struct {
	db           *gorm.DB
	redisClient  *goredis.Client
	logger       *logger.Logger
	batchSize    int
	limiter      *rate.Limiter
	streamMaxLen int64
}

func (s *outboxService) PublishPending(ctx context.Context) {
	repo := repository.NewOutboxRepository(s.db)

	events, err := repo.FindUnpublished(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to load unpublished outbox events", logger.ErrorField(err))
		return
	}

	for _, event := range events {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		if err := s.redisClient.XAdd(ctx, &goredis.XAddArgs{
			Stream: common.RedisStreamEngineEvents,
			Values: map[string]interface{}{
				"event_id": event.EventID,
				"topic":    event.Topic,
				"payload":  string(event.Payload),
			},
			MaxLen: s.streamMaxLen,
		}).Err(); err != nil {
			// Stop the batch; the next tick retries from the oldest
			// unpublished row.
			s.logger.Error("Failed to publish outbox event", logger.ErrorField(err),
				logger.Field("event_id", event.EventID), logger.Field("topic", event.Topic))
			return
		}

		if err := repo.MarkPublished(ctx, event.ID, time.Now()); err != nil {
			// The event goes out again next tick; consumers dedup on
			// event_id.
			s.logger.Error("Failed to mark outbox event published", logger.ErrorField(err),
				logger.Field("event_id", event.EventID))
			return
		}
	}

	if len(events) > 0 {
		s.logger.Info("Outbox events published", logger.IntField("count", len(events)))
	}
}
