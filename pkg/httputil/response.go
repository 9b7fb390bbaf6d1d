package httputil

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/pkg/errors"
)

// Response wraps all API responses.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithError writes err as an error envelope. Only AppError messages
// reach the client; anything else is reported as an internal error.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	_ = c.Error(err)
	c.JSON(appErr.StatusCode(), Response{
		Status:  "error",
		Message: appErr.Message,
	})
}

// SeeOther redirects to path with query appended, dropping empty values.
func SeeOther(c *gin.Context, path string, query url.Values) {
	for k, v := range query {
		if len(v) == 0 || v[0] == "" {
			query.Del(k)
		}
	}
	if enc := query.Encode(); enc != "" {
		path += "?" + enc
	}
	c.Redirect(http.StatusSeeOther, path)
}
