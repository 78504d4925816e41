package service

import (
	"context"
	"time"

	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// readStreamMessage blocks briefly for one message from the stream's
// consumer group. Returns ok=false when there is nothing to process.
func readStreamMessage(ctx context.Context, client *goredis.Client, stream string, log *logger.Logger) (payload []byte, msgID string, ok bool) {
	streams, err := client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    2 * time.Second,
	}).Result()
	if err != nil {
		// Context cancellation and empty reads are expected during shutdown
		// and idle periods.
		if err == context.Canceled || err == goredis.Nil {
			return nil, "", false
		}
		log.Error("Failed to read from stream", logger.ErrorField(err), logger.Field("stream", stream))
		return nil, "", false
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, "", false
	}

	message := streams[0].Messages[0]
	raw, found := message.Values["payload"].(string)
	if !found {
		log.Error("field 'payload' not found or not a string in stream message",
			logger.Field("stream", stream), logger.Field("message_id", message.ID))
		ackStreamMessage(ctx, client, stream, message.ID, log)
		return nil, "", false
	}
	return []byte(raw), message.ID, true
}

// ackStreamMessage acknowledges a processed (or poisoned) message.
func ackStreamMessage(ctx context.Context, client *goredis.Client, stream, msgID string, log *logger.Logger) {
	if err := client.XAck(ctx, stream, common.RedisStreamGroup, msgID).Err(); err != nil {
		log.Error("Failed to acknowledge message", logger.ErrorField(err),
			logger.Field("stream", stream), logger.Field("message_id", msgID))
	}
}
