package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-portal/internal/middleware"
)

// Handler ends portal sessions. Tokens themselves are issued and revoked by
// the booking backend.
type Handler struct {
	cfg middleware.SessionConfig
}

func NewHandler(cfg middleware.SessionConfig) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admin/logout", h.Logout)
}

func (h *Handler) Logout(c *gin.Context) {
	if s := middleware.CurrentSession(c); s != nil {
		zerolog.Ctx(c.Request.Context()).Info().Str("session_id", s.ID).Msg("session ended")
	}
	middleware.DiscardSession(c, h.cfg)
	c.Redirect(http.StatusSeeOther, "/admin/appointments")
}
