package appointment

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/admin"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
	"github.com/jwalitptl/clinic-portal/pkg/httputil"
)

const (
	listPath         = "/admin/appointments"
	notAuthorizedMsg = "Not Authorized Login Again"
)

type cancelURI struct {
	ID string `uri:"id" binding:"required,alphanum,max=64"`
}

type listQuery struct {
	Doctor string `form:"doctor" binding:"max=100"`
	Status string `form:"status" binding:"omitempty,oneof=all pending completed cancelled"`
}

type Handler struct {
	service *appointment.Service
	admin   *admin.Service
}

func NewHandler(service *appointment.Service, adm *admin.Service) *Handler {
	return &Handler{service: service, admin: adm}
}

// RegisterRoutes mounts the HTML list view and its cancel action.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group(listPath)
	{
		appointments.GET("", h.ListPage)
		appointments.POST("/:id/cancel", h.Cancel)
	}
}

// RegisterAPIRoutes mounts the JSON list under an /api group.
func (h *Handler) RegisterAPIRoutes(r *gin.RouterGroup) {
	r.GET("/admin/appointments", h.ListAppointments)
}

func (h *Handler) ListPage(c *gin.Context) {
	s := middleware.CurrentSession(c)
	filter := appointment.NewFilter(c.Query("doctor"), c.Query("status"))

	view := h.service.List(c.Request.Context(), h.admin.Bind(s), filter)

	c.HTML(http.StatusOK, "appointments.tmpl", gin.H{
		"Title":   "All Appointments",
		"View":    view,
		"Notices": s.TakeNotices(),
	})
}

// Cancel runs the per-row cancel action and sends the browser back to the
// list with the filters it came from.
func (h *Handler) Cancel(c *gin.Context) {
	s := middleware.CurrentSession(c)
	filter := appointment.NewFilter(c.PostForm("doctor"), c.PostForm("status"))

	var uri cancelURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.AddNotice(model.ErrorNotice("Invalid appointment"))
		httputil.SeeOther(c, listPath, filterQuery(filter))
		return
	}
	id := uri.ID

	err := h.service.Cancel(c.Request.Context(), h.admin.Bind(s), id)
	switch {
	case err == nil:
	case errors.Is(err, admin.ErrNoToken):
		s.AddNotice(model.ErrorNotice(notAuthorizedMsg))
	case errors.Is(err, appointment.ErrNotCancellable):
		s.AddNotice(model.ErrorNotice("Appointment is already " + statusOf(s, id)))
	default:
		// the session context already queued the backend's message
		zerolog.Ctx(c.Request.Context()).Debug().Err(err).Str("appointment_id", id).Msg("cancel did not complete")
	}

	httputil.SeeOther(c, listPath, filterQuery(filter))
}

// ListAppointments serves the filtered rows as JSON.
func (h *Handler) ListAppointments(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if s.AdminToken == "" {
		httputil.RespondWithError(c, apperrors.Unauthorized(admin.ErrNoToken))
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid filter", err))
		return
	}

	filter := appointment.NewFilter(q.Doctor, q.Status)
	ac := h.admin.Bind(s)
	view := h.service.List(c.Request.Context(), ac, filter)
	if view.Stale && len(ac.Appointments()) == 0 {
		// nothing held to fall back on
		msg := "failed to fetch appointments"
		if notices := s.TakeNotices(); len(notices) > 0 {
			msg = notices[len(notices)-1].Message
		}
		httputil.RespondWithError(c, apperrors.Upstream(msg, nil))
		return
	}

	httputil.RespondWithSuccess(c, gin.H{
		"doctor": filter.DoctorQuery,
		"status": filter.Status,
		"total":  view.Total,
		"stale":  view.Stale,
		"rows":   view.Rows,
	})
}

func filterQuery(f appointment.Filter) url.Values {
	q := url.Values{}
	q.Set("doctor", f.DoctorQuery)
	if f.Status != model.StatusFilterAll {
		q.Set("status", string(f.Status))
	}
	return q
}

func statusOf(s *model.Session, id string) string {
	if a, ok := s.FindAppointment(id); ok {
		return string(a.Status())
	}
	return "closed"
}
