package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a panic into a 500. API routes get the JSON error body,
// pages get plain text.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Msg("request panic recovered")

				if strings.HasPrefix(c.Request.URL.Path, "/api/") {
					c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
						Status:  "error",
						Message: "internal server error",
						TraceID: c.GetString(ContextRequestID),
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
				_, _ = c.Writer.WriteString("Internal server error")
			}
		}()
		c.Next()
	}
}
