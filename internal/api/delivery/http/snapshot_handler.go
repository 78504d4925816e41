package http

import (
	"net/http"

	"golang-predict-settler/internal/api/dto"
	"golang-predict-settler/internal/entity"
	settlerservice "golang-predict-settler/internal/settler/service"
	"golang-predict-settler/pkg/logger"
	"golang-predict-settler/pkg/utils"

	"github.com/labstack/echo/v4"
)

// SnapshotHandler receives validated end-of-day price snapshots from the
// vendor ETL, one at a time or in batches.
type SnapshotHandler struct {
	revisionService settlerservice.RevisionService
	logger          *logger.Logger
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(revisionService settlerservice.RevisionService, logger *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{revisionService: revisionService, logger: logger}
}

// RegisterRoutes registers the snapshot routes to the Echo group.
func (h *SnapshotHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.IngestSnapshot)
	g.POST("/batch", h.IngestBatch)
}

// IngestSnapshot handles a single snapshot webhook delivery.
func (h *SnapshotHandler) IngestSnapshot(c echo.Context) error {
	var req dto.IngestSnapshotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request payload"})
	}
	if msg := validateSnapshot(req); msg != "" {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg})
	}
	if err := h.revisionService.HandleSnapshot(c.Request().Context(), toSnapshot(req)); err != nil {
		h.logger.Error("Failed to ingest snapshot", logger.ErrorField(err),
			logger.Field("symbol", req.Symbol), logger.Field("asof", req.AsOf))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to ingest snapshot"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
}

// IngestBatch handles a batch import. Partial failure returns 500 and the
// vendor replays the batch; already-stored revisions are no-ops.
func (h *SnapshotHandler) IngestBatch(c echo.Context) error {
	var req dto.IngestBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request payload"})
	}
	for _, snapshot := range req.Snapshots {
		if msg := validateSnapshot(snapshot); msg != "" {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg})
		}
	}
	for _, snapshot := range req.Snapshots {
		if err := h.revisionService.HandleSnapshot(c.Request().Context(), toSnapshot(snapshot)); err != nil {
			h.logger.Error("Failed to ingest snapshot in batch", logger.ErrorField(err),
				logger.Field("symbol", snapshot.Symbol), logger.Field("asof", snapshot.AsOf))
			return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to ingest batch"})
		}
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted", "count": len(req.Snapshots)})
}

func validateSnapshot(req dto.IngestSnapshotRequest) string {
	if _, err := utils.ParseTradingDay(req.AsOf); err != nil {
		return "Invalid asof date, expected YYYY-MM-DD"
	}
	if req.Symbol == "" {
		return "Symbol is required"
	}
	if req.Revision < 1 {
		return "Revision must be at least 1"
	}
	return ""
}

func toSnapshot(req dto.IngestSnapshotRequest) entity.PriceSnapshot {
	return entity.PriceSnapshot{
		AsOfDate:      req.AsOf,
		Symbol:        req.Symbol,
		Close:         req.Close,
		PreviousClose: req.PreviousClose,
		Revision:      req.Revision,
	}
}
