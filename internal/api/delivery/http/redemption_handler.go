package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang-predict-settler/internal/api/dto"
	settlerdto "golang-predict-settler/internal/settler/dto"
	settlerservice "golang-predict-settler/internal/settler/service"
	"golang-predict-settler/pkg/common"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/ratelimit"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
)

// RedemptionHandler accepts redemption requests and user-initiated cancels.
// Creation only mints a saga id and enqueues; the saga worker owns every
// state transition.
type RedemptionHandler struct {
	redemptionService settlerservice.RedemptionService
	redisClient       *goredis.Client
	limiter           *ratelimit.Limiter
	logger            *logger.Logger
	streamMaxLen      int64
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(redemptionService settlerservice.RedemptionService, redisClient *goredis.Client, limiter *ratelimit.Limiter, logger *logger.Logger, streamMaxLen int64) *RedemptionHandler {
	return &RedemptionHandler{
		redemptionService: redemptionService,
		redisClient:       redisClient,
		limiter:           limiter,
		logger:            logger,
		streamMaxLen:      streamMaxLen,
	}
}

// RegisterRoutes registers the redemption routes to the Echo group.
func (h *RedemptionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.CreateRedemption)
	g.POST("/:id/cancel", h.CancelRedemption)
}

// CreateRedemption mints a saga and enqueues it for the redemption worker.
func (h *RedemptionHandler) CreateRedemption(c echo.Context) error {
	var req dto.RedemptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request payload"})
	}
	if req.UserID == 0 || req.SKU == "" || req.CostPoints <= 0 {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "user_id, sku and a positive cost_points are required"})
	}

	allowed, err := h.limiter.Allow(c.Request().Context(), requestActor(c), "redemption-create")
	if err != nil {
		h.logger.Error("Rate limiter check failed, admitting request", logger.ErrorField(err))
	} else if !allowed {
		return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: "Too many redemption requests, retry later"})
	}

	sagaID := uuid.NewString()
	payload, err := json.Marshal(settlerdto.RedemptionRequestMessage{
		SagaID:     sagaID,
		UserID:     req.UserID,
		SKU:        req.SKU,
		CostPoints: req.CostPoints,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue redemption"})
	}
	if err := h.redisClient.XAdd(c.Request().Context(), &goredis.XAddArgs{
		Stream: common.RedisStreamRedemptionRequest,
		Values: map[string]interface{}{"payload": payload},
		MaxLen: h.streamMaxLen,
	}).Err(); err != nil {
		h.logger.Error("Failed to enqueue redemption", logger.ErrorField(err), logger.Field("saga_id", sagaID))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue redemption"})
	}

	return c.JSON(http.StatusAccepted, dto.RedemptionResponse{SagaID: sagaID, Status: "REQUESTED"})
}

// CancelRedemption aborts a not-yet-issued saga on the owning user's behalf.
func (h *RedemptionHandler) CancelRedemption(c echo.Context) error {
	sagaID := c.Param("id")
	if _, err := uuid.Parse(sagaID); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid saga id"})
	}
	var req dto.RedemptionRequest
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "user_id is required"})
	}

	err := h.redemptionService.Cancel(c.Request().Context(), sagaID, req.UserID)
	switch {
	case errors.Is(err, settlerservice.ErrSagaNotFound):
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Redemption not found"})
	case errors.Is(err, settlerservice.ErrHoldNotOwned):
		return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "Redemption belongs to another user"})
	case errors.Is(err, settlerservice.ErrSagaTerminal):
		return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "Redemption already issued or closed"})
	case err != nil:
		h.logger.Error("Failed to cancel redemption", logger.ErrorField(err), logger.Field("saga_id", sagaID))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to cancel redemption"})
	}

	return c.JSON(http.StatusOK, dto.RedemptionResponse{SagaID: sagaID, Status: "CANCELLED"})
}
