package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorSink stores diagnostics for operators.
type ErrorSink interface {
	AddErrorLog(ctx context.Context, text string) error
}

// Recovery turns handler panics into 500 responses and keeps a diagnostic in sink.
func Recovery(sink ErrorSink, logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		text := fmt.Sprintf("%s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		logger.Error("handler panicked",
			slog.String("request_id", c.GetString(RequestIDContextKey)),
			slog.String("panic", fmt.Sprint(recovered)),
		)
		if err := sink.AddErrorLog(context.WithoutCancel(c.Request.Context()), text); err != nil {
			logger.Warn("failed to store panic diagnostic", slog.Any("error", err))
		}
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
