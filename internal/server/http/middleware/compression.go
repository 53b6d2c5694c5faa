package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

// DecompressRequest unwraps gzip or deflate encoded request bodies, so workers may compress
// artifact uploads and failure reports. Other encodings are rejected with 415.
func DecompressRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		encoding := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		if encoding == "" || encoding == "identity" {
			c.Next()
			return
		}

		original := c.Request.Body
		var decoded io.ReadCloser
		switch encoding {
		case "gzip", "x-gzip":
			reader, err := gzip.NewReader(original)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Malformed gzip body"})
				return
			}
			decoded = reader
		case "deflate":
			decoded = flate.NewReader(original)
		default:
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, dto.ErrorResponse{Error: "Unsupported content encoding"})
			return
		}
		defer original.Close()
		defer decoded.Close()

		c.Request.Body = decoded
		c.Request.Header.Del("Content-Encoding")
		c.Request.ContentLength = -1
		c.Next()
	}
}
