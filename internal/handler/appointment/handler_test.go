package appointment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/backend"
	"github.com/jwalitptl/clinic-portal/internal/format"
	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/admin"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
)

type fakeBackend struct {
	list      []model.Appointment
	listErr   error
	cancelled []string
}

func (f *fakeBackend) ListAppointments(context.Context, string) ([]model.Appointment, error) {
	return f.list, f.listErr
}

func (f *fakeBackend) CancelAppointment(_ context.Context, _, id string) (string, error) {
	f.cancelled = append(f.cancelled, id)
	return "Appointment Cancelled", nil
}

func newEngine(fb *fakeBackend, s *model.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(func(c *gin.Context) {
		c.Set(middleware.ContextSession, s)
		c.Next()
	})
	h := NewHandler(appointment.NewService(format.NewFormatter("$")), admin.NewService(fb))
	h.RegisterRoutes(e.Group(""))
	h.RegisterAPIRoutes(e.Group("/api/v1"))
	return e
}

func TestCancelRejectsMalformedID(t *testing.T) {
	fb := &fakeBackend{}
	s := &model.Session{ID: "s1", AdminToken: "tok"}
	e := newEngine(fb, s)

	req := httptest.NewRequest(http.MethodPost, "/admin/appointments/a1%3Bdrop/cancel", strings.NewReader(url.Values{"status": {"pending"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/appointments?status=pending", w.Header().Get("Location"))
	assert.Empty(t, fb.cancelled)
	require.Len(t, s.Notices, 1)
	assert.Equal(t, model.NoticeError, s.Notices[0].Kind)
}

func TestCancelHeldCompletedAppointment(t *testing.T) {
	fb := &fakeBackend{}
	s := &model.Session{ID: "s1", AdminToken: "tok", Appointments: []model.Appointment{{ID: "a3", Completed: true}}}
	e := newEngine(fb, s)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/appointments/a3/cancel", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Empty(t, fb.cancelled)
	require.Len(t, s.Notices, 1)
	assert.Equal(t, model.ErrorNotice("Appointment is already completed"), s.Notices[0])
}

func TestListAppointmentsRejectsUnknownStatus(t *testing.T) {
	e := newEngine(&fakeBackend{}, &model.Session{ID: "s1", AdminToken: "tok"})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments?status=archived", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"invalid filter"}`, w.Body.String())
}

func TestListAppointmentsUpstreamFailureWithNothingHeld(t *testing.T) {
	fb := &fakeBackend{listErr: &backend.APIError{Status: http.StatusOK, Message: "Not Authorized Login Again"}}
	e := newEngine(fb, &model.Session{ID: "s1", AdminToken: "tok"})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Not Authorized Login Again"}`, w.Body.String())
}

func TestListAppointmentsServesHeldDataWhenRefreshFails(t *testing.T) {
	fb := &fakeBackend{listErr: &backend.APIError{Status: http.StatusBadGateway, Message: "Bad Gateway"}}
	s := &model.Session{ID: "s1", AdminToken: "tok", Appointments: []model.Appointment{{ID: "a1", Doctor: model.DoctorRef{Name: "Dr. Lee"}}}}
	e := newEngine(fb, s)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stale":true`)
	assert.Contains(t, w.Body.String(), `"id":"a1"`)
}
