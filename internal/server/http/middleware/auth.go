package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	pkgAuth "github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

const (
	// WorkerIDContextKey is a gin context key for the authenticated worker identifier.
	WorkerIDContextKey = "workerID"

	signatureFailed = "Signature verification failed"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	ParseToken(token string) (*pkgAuth.Principal, error)
}

// WorkerAuthenticator resolves and heartbeats workers behind verified tokens.
type WorkerAuthenticator interface {
	TokenParser
	AuthenticateWorker(ctx context.Context, id int64, remoteAddr string) (*model.Worker, error)
	Heartbeat(ctx context.Context, id int64) error
}

// WorkerRequired admits requests carrying a worker token whose worker exists and accepts the
// caller's address. Successful requests refresh the worker's heartbeat.
func WorkerRequired(auth WorkerAuthenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromRequest(c, auth, pkgAuth.KindWorker)
		if !ok {
			return
		}

		worker, err := auth.AuthenticateWorker(c.Request.Context(), principal.Subject, c.ClientIP())
		if err != nil {
			if errors.Is(err, domainErrors.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, dto.MessageResponse{Msg: signatureFailed})
				return
			}
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Set(WorkerIDContextKey, worker.ID)
		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		if err := auth.Heartbeat(c.Request.Context(), worker.ID); err != nil {
			logger.Warn("failed to record heartbeat", slog.Int64("worker_id", worker.ID), slog.Any("error", err))
		}
	}
}

// FrontendRequired admits requests carrying a front-end token.
func FrontendRequired(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := principalFromRequest(c, parser, pkgAuth.KindFrontend); !ok {
			return
		}
		c.Next()
	}
}

func principalFromRequest(c *gin.Context, parser TokenParser, kind string) (*pkgAuth.Principal, bool) {
	token := extractToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.MessageResponse{Msg: "Missing Authorization Header"})
		return nil, false
	}

	principal, err := parser.ParseToken(token)
	if err != nil {
		if errors.Is(err, pkgAuth.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.MessageResponse{Msg: signatureFailed})
			return nil, false
		}
		c.AbortWithStatus(http.StatusInternalServerError)
		return nil, false
	}

	if principal.Kind != kind {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.MessageResponse{Msg: "Token is not valid for this endpoint"})
		return nil, false
	}
	return principal, true
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
