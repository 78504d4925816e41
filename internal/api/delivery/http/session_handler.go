package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang-predict-settler/internal/api/dto"
	settlerservice "golang-predict-settler/internal/settler/service"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/utils"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// SessionHandler serves session phase and prediction-gate queries, plus the
// ledger balance lookup the mobile client polls.
type SessionHandler struct {
	sessionService settlerservice.SessionService
	ledgerService  settlerservice.LedgerService
	logger         *logger.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService settlerservice.SessionService, ledgerService settlerservice.LedgerService, logger *logger.Logger) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, ledgerService: ledgerService, logger: logger}
}

// RegisterRoutes registers the session routes to the Echo group.
func (h *SessionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/:day", h.GetSession)
	g.GET("/:day/can-predict", h.CanPredict)
}

// RegisterBalanceRoutes registers the balance lookup under the users group.
func (h *SessionHandler) RegisterBalanceRoutes(g *echo.Group) {
	g.GET("/:id/balance", h.GetBalance)
}

// GetSession returns the phase of one trading day's session.
func (h *SessionHandler) GetSession(c echo.Context) error {
	day := c.Param("day")
	if _, err := utils.ParseTradingDay(day); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid trading day, expected YYYY-MM-DD"})
	}

	phase, err := h.sessionService.GetPhase(c.Request().Context(), day)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Session not found"})
	}
	if err != nil {
		h.logger.Error("Failed to get session", logger.ErrorField(err), logger.Field("trading_day", day))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get session"})
	}

	return c.JSON(http.StatusOK, dto.SessionResponse{TradingDay: day, Phase: string(phase)})
}

// CanPredict reports whether predictions for the day are still accepted.
// Unknown days answer false rather than erroring, the client treats both the
// same way.
func (h *SessionHandler) CanPredict(c echo.Context) error {
	day := c.Param("day")
	if _, err := utils.ParseTradingDay(day); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid trading day, expected YYYY-MM-DD"})
	}

	ok, err := h.sessionService.CanPredict(c.Request().Context(), day, time.Now())
	if err != nil {
		h.logger.Error("Failed to check prediction gate", logger.ErrorField(err), logger.Field("trading_day", day))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to check prediction gate"})
	}

	return c.JSON(http.StatusOK, dto.CanPredictResponse{TradingDay: day, CanPredict: ok})
}

// GetBalance returns a user's current points balance.
func (h *SessionHandler) GetBalance(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user id"})
	}

	balance, err := h.ledgerService.BalanceOf(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get balance", logger.ErrorField(err), logger.IntField("user_id", int(userID)))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get balance"})
	}

	return c.JSON(http.StatusOK, dto.BalanceResponse{UserID: userID, Balance: balance})
}
