package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/middleware"
)

// CurrentWorkerID extracts the authenticated worker identifier from context.
func CurrentWorkerID(c *gin.Context) int64 {
	val, ok := c.Get(middleware.WorkerIDContextKey)
	if !ok {
		return 0
	}
	id, _ := val.(int64)
	return id
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: msg})
}
