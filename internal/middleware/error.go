package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

// ErrorResponse is the JSON error body of the /api routes.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error when the handler
// did not write a response itself. AppErrors keep their status and message;
// anything else becomes an opaque 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		l := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			l.Error().Err(e.Err).Str("path", c.Request.URL.Path).Msg("request error")
		}

		if c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := apperrors.As(err)
		if !ok {
			appErr = apperrors.Internal(err)
		}

		c.JSON(appErr.StatusCode(), ErrorResponse{
			Status:  "error",
			Message: appErr.Message,
			TraceID: c.GetString(ContextRequestID),
		})
	}
}
