package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

// AdminHandler serves diagnostics and statistics.
type AdminHandler struct {
	facade FrontendFacade
	health HealthChecker
	logger *slog.Logger
}

// NewAdminHandler creates AdminHandler instance.
func NewAdminHandler(facade FrontendFacade, health HealthChecker, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{facade: facade, health: health, logger: logger}
}

// PopErrorLog handles POST /api/error-logs/pop.
func (h *AdminHandler) PopErrorLog(c *gin.Context) {
	entry, err := h.facade.PopErrorLog(c.Request.Context())
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		h.logger.Error("pop error log failed", slog.Any("error", err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, dto.ErrorLogResponse{ID: entry.ID, RecordCreated: entry.RecordCreated, Text: entry.Text})
}

// UserStats handles GET /api/stats/users/:user_id.
func (h *AdminHandler) UserStats(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	stats, err := h.facade.UserStats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		h.logger.Error("user stats failed", slog.Any("error", err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserStatsResponse(stats))
}

// Health handles GET /healthz.
func (h *AdminHandler) Health(c *gin.Context) {
	if err := h.health.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
