package http

import (
	"encoding/json"
	"net/http"

	"golang-predict-settler/internal/api/dto"
	settlerdto "golang-predict-settler/internal/settler/dto"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/ratelimit"
	"golang-predict-settler/pkg/utils"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
)

// TriggerHandler exposes the manual settlement trigger for operators. The
// trigger only enqueues; the settlement engine decides whether the day is
// actually ready to run.
type TriggerHandler struct {
	redisClient  *goredis.Client
	limiter      *ratelimit.Limiter
	logger       *logger.Logger
	streamMaxLen int64
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(redisClient *goredis.Client, limiter *ratelimit.Limiter, logger *logger.Logger, streamMaxLen int64) *TriggerHandler {
	return &TriggerHandler{redisClient: redisClient, limiter: limiter, logger: logger, streamMaxLen: streamMaxLen}
}

// RegisterRoutes registers the settlement trigger routes to the Echo group.
func (h *TriggerHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/:day/trigger", h.TriggerSettlement)
}

// TriggerSettlement enqueues a settlement run for one trading day.
func (h *TriggerHandler) TriggerSettlement(c echo.Context) error {
	day := c.Param("day")
	if _, err := utils.ParseTradingDay(day); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid trading day, expected YYYY-MM-DD"})
	}

	allowed, err := h.limiter.Allow(c.Request().Context(), requestActor(c), "settlement-trigger")
	if err != nil {
		// Limiter storage being down must not block settlement operations.
		h.logger.Error("Rate limiter check failed, admitting request", logger.ErrorField(err))
	} else if !allowed {
		return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "Too many settlement triggers, retry later"})
	}

	payload, err := json.Marshal(settlerdto.SettleTriggerMessage{TradingDay: day})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue settlement trigger"})
	}
	if err := h.redisClient.XAdd(c.Request().Context(), &goredis.XAddArgs{
		Stream: common.RedisStreamSettleTrigger,
		Values: map[string]interface{}{"payload": payload},
		MaxLen: h.streamMaxLen,
	}).Err(); err != nil {
		h.logger.Error("Failed to enqueue settlement trigger", logger.ErrorField(err), logger.Field("trading_day", day))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue settlement trigger"})
	}

	return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted", "trading_day": day})
}

// requestActor identifies the caller for rate limiting: the authenticated
// user header when present, the client IP otherwise.
func requestActor(c echo.Context) string {
	if actor := c.Request().Header.Get("X-User-ID"); actor != "" {
		return actor
	}
	return c.RealIP()
}
