package common

const (
	RedisStreamSettleTrigger     = "settlement.trigger"
	RedisStreamPointsAward       = "points.award"
	RedisStreamRedemptionRequest = "redemption.request"
	RedisStreamEngineEvents      = "engine.events"

	RedisStreamGroup    = "settler-group"
	RedisStreamConsumer = "settler-consumer"
)
