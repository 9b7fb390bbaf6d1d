package payment

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/service/payment"
)

type Handler struct {
	verifier       *payment.Verifier
	myAppointments string
}

func NewHandler(verifier *payment.Verifier, myAppointments string) *Handler {
	return &Handler{verifier: verifier, myAppointments: myAppointments}
}

// RegisterRoutes mounts the checkout return URL and, when it is served here,
// the patient's appointments page.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/verify", h.Verify)
	if strings.HasPrefix(h.myAppointments, "/") {
		r.GET(h.myAppointments, h.MyAppointments)
	}
}

// Verify confirms a Stripe checkout with the backend and redirects to the
// patient's appointments whatever the outcome.
func (h *Handler) Verify(c *gin.Context) {
	s := middleware.CurrentSession(c)

	out := h.verifier.Verify(c.Request.Context(), s.ID, payment.Params{
		Token:         s.UserToken,
		Success:       c.Query("success"),
		AppointmentID: c.Query("appointmentId"),
	})
	if out.Notice != nil {
		s.AddNotice(*out.Notice)
	}

	c.Redirect(http.StatusSeeOther, out.Redirect)
}

func (h *Handler) MyAppointments(c *gin.Context) {
	s := middleware.CurrentSession(c)
	c.HTML(http.StatusOK, "my_appointments.tmpl", gin.H{
		"Title":   "My Appointments",
		"Notices": s.TakeNotices(),
	})
}
