package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

// OrderHandler manages front-end order endpoints.
type OrderHandler struct {
	facade FrontendFacade
	logger *slog.Logger
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade FrontendFacade, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{facade: facade, logger: logger}
}

// Create handles POST /api/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := dto.DecodeOrderSubmission(req.Order)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	order, position, err := h.facade.CreateOrder(c.Request.Context(), model.Order{
		UserID:      req.UserID,
		Priority:    req.Priority,
		SourcesOnly: sub.SourcesOnly,
		UpdateTag:   sub.UpdateTag,
		Config:      sub.Config,
	})
	if err != nil {
		h.orderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.OrderCreatedResponse{
		ID:            order.ID,
		Status:        string(order.Status),
		QueuePosition: position,
	})
}

// Get handles GET /api/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	order, position, err := h.facade.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.orderError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order, position))
}

// Update handles PUT /api/orders/:id.
func (h *OrderHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	var req dto.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := dto.DecodeOrderSubmission(req.Order)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	order := &model.Order{ID: id, Priority: req.Priority, UpdateTag: sub.UpdateTag, Config: sub.Config}
	if err := h.facade.UpdateOrder(c.Request.Context(), order); err != nil {
		h.orderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Event handles POST /api/orders/:id/events.
func (h *OrderHandler) Event(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	event, err := lifecycle.ParseEvent(req.Event)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.facade.ApplyEvent(c.Request.Context(), id, event)
	if err != nil {
		h.orderError(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusOK, dto.RemovedResponse{ID: id, Removed: true})
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderResponse(order, 0))
}

// Delete handles DELETE /api/orders/:id.
func (h *OrderHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	if err := h.facade.DeleteOrder(c.Request.Context(), id); err != nil {
		h.orderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Artifact handles GET /api/orders/:id/artifact.
func (h *OrderHandler) Artifact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	r, kind, err := h.facade.OpenArtifact(c.Request.Context(), id)
	if err != nil {
		h.orderError(c, err)
		return
	}
	defer r.Close()

	contentType := "application/zip"
	if kind == model.ArtifactBuild {
		contentType = "application/vnd.android.package-archive"
	}
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(string(kind)))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, r); err != nil {
		h.logger.Warn("artifact stream interrupted", slog.Int64("order_id", id), slog.Any("error", err))
	}
}

func (h *OrderHandler) orderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainErrors.ErrNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domainErrors.ErrInvalidPriority), errors.Is(err, domainErrors.ErrInvalidPayload):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domainErrors.ErrWrongState), errors.Is(err, domainErrors.ErrStateConflict):
		abortWithError(c, http.StatusConflict, err.Error())
	default:
		h.logger.Error("order request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}
