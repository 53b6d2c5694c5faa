package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

const (
	msgBuildStarted    = "Build has already started"
	msgBuildNotStarted = "Build did not start"
	msgNoFile          = "No file sent"
	msgOrderIDRequired = "Order id required"
	uploadField        = "file"
)

// WorkerHandler serves the build worker leasing protocol.
type WorkerHandler struct {
	facade        WorkerFacade
	maxUploadSize int64
	logger        *slog.Logger
}

// NewWorkerHandler creates WorkerHandler instance.
func NewWorkerHandler(facade WorkerFacade, maxUploadSize int64, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{facade: facade, maxUploadSize: maxUploadSize, logger: logger}
}

// KeepAlive handles GET /keep-alive. The heartbeat itself is recorded by the auth middleware.
func (h *WorkerHandler) KeepAlive(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ReceiveOrder handles GET /receive-order.
func (h *WorkerHandler) ReceiveOrder(c *gin.Context) {
	order, err := h.facade.ReceiveOrder(c.Request.Context(), CurrentWorkerID(c))
	if err != nil {
		if errors.Is(err, domainErrors.ErrLeaseHeld) {
			abortWithError(c, http.StatusBadRequest, msgBuildStarted)
			return
		}
		h.internalError(c, "receive order", err)
		return
	}
	if order == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderPayload(order))
}

// CurrentOrder handles GET /get-current-order.
func (h *WorkerHandler) CurrentOrder(c *gin.Context) {
	order, err := h.facade.CurrentOrder(c.Request.Context(), CurrentWorkerID(c))
	if err != nil {
		if errors.Is(err, domainErrors.ErrNoLease) {
			abortWithError(c, http.StatusBadRequest, msgBuildNotStarted)
			return
		}
		h.internalError(c, "current order", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderPayload(order))
}

// OrderCompleted handles POST /order-completed with the built package as multipart "file".
func (h *WorkerHandler) OrderCompleted(c *gin.Context) {
	workerID := CurrentWorkerID(c)
	if _, err := h.facade.CurrentOrder(c.Request.Context(), workerID); err != nil {
		h.reportError(c, err)
		return
	}

	file, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	if err := h.facade.CompleteOrder(c.Request.Context(), workerID, file); err != nil {
		h.reportError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OrderFailed handles POST /order-failed with an optional {"error_text": ...} body.
func (h *WorkerHandler) OrderFailed(c *gin.Context) {
	var report dto.FailureReport
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := json.NewDecoder(c.Request.Body).Decode(&report); err != nil && !errors.Is(err, io.EOF) {
			h.logger.Debug("ignoring malformed failure report", slog.Any("error", err))
			report = dto.FailureReport{}
		}
	}

	if err := h.facade.FailOrder(c.Request.Context(), CurrentWorkerID(c), report.ErrorText); err != nil {
		h.reportError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReceiveSourcesOrder handles GET /receive-sources-only-order.
func (h *WorkerHandler) ReceiveSourcesOrder(c *gin.Context) {
	order, err := h.facade.NextSourcesOrder(c.Request.Context())
	if err != nil {
		h.internalError(c, "receive sources order", err)
		return
	}
	if order == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrderPayload(order))
}

// SourcesOrderCompleted handles POST /sources-only-order-completed?order-id=<id>.
func (h *WorkerHandler) SourcesOrderCompleted(c *gin.Context) {
	raw := c.Query("order-id")
	if raw == "" {
		abortWithError(c, http.StatusBadRequest, msgOrderIDRequired)
		return
	}
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, msgOrderIDRequired)
		return
	}

	if _, err := h.facade.CheckSourcesOrder(c.Request.Context(), orderID); err != nil {
		h.sourcesError(c, orderID, err)
		return
	}

	file, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	if err := h.facade.CompleteSourcesOrder(c.Request.Context(), orderID, file); err != nil {
		h.sourcesError(c, orderID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WorkerHandler) openUpload(c *gin.Context) (multipart.File, bool) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}
	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "File too large")
			return nil, false
		}
		abortWithError(c, http.StatusBadRequest, msgNoFile)
		return nil, false
	}
	file, err := header.Open()
	if err != nil {
		h.internalError(c, "open upload", err)
		return nil, false
	}
	return file, true
}

func (h *WorkerHandler) reportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainErrors.ErrNoLease):
		abortWithError(c, http.StatusBadRequest, msgBuildNotStarted)
	case errors.Is(err, domainErrors.ErrWrongState):
		abortWithError(c, http.StatusConflict, err.Error())
	default:
		h.internalError(c, "report order", err)
	}
}

func (h *WorkerHandler) sourcesError(c *gin.Context, orderID int64, err error) {
	switch {
	case errors.Is(err, domainErrors.ErrNotFound):
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("There is no order with id %d", orderID))
	case errors.Is(err, domainErrors.ErrWrongState):
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Order %d is not sources only", orderID))
	default:
		h.internalError(c, "report sources order", err)
	}
}

func (h *WorkerHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error(op+" failed", slog.Int64("worker_id", CurrentWorkerID(c)), slog.Any("error", err))
	c.AbortWithStatus(http.StatusInternalServerError)
}
