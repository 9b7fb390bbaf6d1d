package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/backend"
	"github.com/jwalitptl/clinic-portal/internal/format"
	appointmentHandler "github.com/jwalitptl/clinic-portal/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-portal/internal/handler/auth"
	"github.com/jwalitptl/clinic-portal/internal/handler/health"
	paymentHandler "github.com/jwalitptl/clinic-portal/internal/handler/payment"
	promHandler "github.com/jwalitptl/clinic-portal/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/service/admin"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
	"github.com/jwalitptl/clinic-portal/internal/service/payment"
	"github.com/jwalitptl/clinic-portal/internal/session"
	"github.com/jwalitptl/clinic-portal/internal/web"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
)

const (
	adminToken = "admin-tok"
	userToken  = "user-tok"
)

type fakeAppointment struct {
	ID       string `json:"_id"`
	UserData struct {
		Name  string `json:"name"`
		Image string `json:"image"`
		DOB   string `json:"dob"`
	} `json:"userData"`
	DocData struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"docData"`
	SlotDate    string  `json:"slotDate"`
	SlotTime    string  `json:"slotTime"`
	Amount      float64 `json:"amount"`
	Cancelled   bool    `json:"cancelled"`
	IsCompleted bool    `json:"isCompleted"`
}

func newFakeAppointment(id, patient, doctor string, cancelled, completed bool) fakeAppointment {
	a := fakeAppointment{ID: id, SlotDate: "20_1_2025", SlotTime: "10:00 AM", Amount: 50, Cancelled: cancelled, IsCompleted: completed}
	a.UserData.Name = patient
	a.UserData.DOB = "1990-05-10"
	a.DocData.Name = doctor
	return a
}

// bookingAPI mimics the booking backend's admin and payment endpoints.
type bookingAPI struct {
	mu           sync.Mutex
	appointments []fakeAppointment
	verifyCalls  int
}

func (b *bookingAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/admin/appointments", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("aToken") != adminToken {
			writeJSON(w, map[string]interface{}{"success": false, "message": "Not Authorized Login Again"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, map[string]interface{}{"success": true, "appointments": b.appointments})
	})
	mux.HandleFunc("/api/admin/cancel-appointment", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AppointmentID string `json:"appointmentId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.appointments {
			if b.appointments[i].ID == body.AppointmentID {
				b.appointments[i].Cancelled = true
			}
		}
		writeJSON(w, map[string]interface{}{"success": true, "message": "Appointment Cancelled"})
	})
	mux.HandleFunc("/api/user/verifyStripe", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.verifyCalls++
		b.mu.Unlock()
		if r.Header.Get("token") != userToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]interface{}{"success": false, "message": "Not Authorized Login Again"})
			return
		}
		var body struct {
			Success string `json:"success"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Success == "true" {
			writeJSON(w, map[string]interface{}{"success": true, "message": "Payment Successful"})
			return
		}
		writeJSON(w, map[string]interface{}{"success": false, "message": "Payment Failed"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// browser replays the session cookie the way a real browser would.
type browser struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func (b *browser) do(method, target string, form url.Values, header map[string]string) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	b.h.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return w
}

type harness struct {
	api     *bookingAPI
	router  *Router
	reg     *prometheus.Registry
	browser *browser
}

func setup(t *testing.T) *harness {
	t.Helper()

	api := &bookingAPI{appointments: []fakeAppointment{
		newFakeAppointment("a1", "Ann", "Dr. Lee", false, false),
		newFakeAppointment("a2", "Bob", "Dr. Leeds", true, false),
		newFakeAppointment("a3", "Cat", "Dr. Patel", false, true),
	}}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	store := session.NewMemoryStore(time.Hour, time.Hour)
	client := backend.NewClient(backend.Config{BaseURL: srv.URL, Timeout: 5 * time.Second, FailureThreshold: 5}, m)

	sessionCfg := middleware.SessionConfig{CookieName: "portal_session", TTL: time.Hour}
	r := NewRouter(RouterConfig{
		Mode:           gin.TestMode,
		RequestTimeout: 10 * time.Second,
		Security:       middleware.DefaultSecurityConfig(),
		Session:        sessionCfg,
		MetricsPrefix:  "test_http",
		Registerer:     reg,
		Templates:      web.MustTemplates(),
	})
	r.Setup(Deps{
		Store:   store,
		Metrics: m,
		Health: health.NewHandler(map[string]health.Pinger{
			"session_store": store,
			"backend":       client,
		}),
		Prometheus:   promHandler.New(reg),
		Appointments: appointmentHandler.NewHandler(appointment.NewService(format.NewFormatter("$")), admin.NewService(client)),
		Payments:     paymentHandler.NewHandler(payment.NewVerifier(client, "/my-appointments", m), "/my-appointments"),
		Auth:         authHandler.NewHandler(sessionCfg),
	})

	return &harness{
		api:     api,
		router:  r,
		reg:     reg,
		browser: &browser{t: t, h: r.Engine(), cookies: map[string]*http.Cookie{}},
	}
}

func TestAppointmentListFiltersByDoctorAndStatus(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/admin/appointments?doctor=lee&status=cancelled", nil, map[string]string{"aToken": adminToken})
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "All Appointments")
	assert.Contains(t, body, "Bob")
	assert.NotContains(t, body, "Ann")
	assert.NotContains(t, body, "Cat")
	assert.Contains(t, body, "20 Jan 2025, 10:00 AM")
	assert.Equal(t, 1, strings.Count(body, `class="status status-cancelled"`))
}

func TestAppointmentListShowsOneIndicatorPerRow(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/admin/appointments", nil, map[string]string{"aToken": adminToken})
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, `class="status status-cancelled"`))
	assert.Equal(t, 1, strings.Count(body, `class="status status-completed"`))
	assert.Equal(t, 1, strings.Count(body, `action="/admin/appointments/a1/cancel"`))
	assert.NotContains(t, body, `action="/admin/appointments/a2/cancel"`)
	assert.NotContains(t, body, `action="/admin/appointments/a3/cancel"`)
}

func TestAppointmentListWithoutTokenRendersEmpty(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/admin/appointments", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sign in to the admin panel")
	assert.NotContains(t, w.Body.String(), "Ann")
}

func TestCancelRedirectsBackWithFiltersAndShowsNotice(t *testing.T) {
	h := setup(t)
	h.browser.do(http.MethodGet, "/admin/appointments", nil, map[string]string{"aToken": adminToken})

	w := h.browser.do(http.MethodPost, "/admin/appointments/a1/cancel", url.Values{
		"doctor": {"lee"},
		"status": {"pending"},
	}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/appointments?doctor=lee&status=pending", w.Header().Get("Location"))

	w = h.browser.do(http.MethodGet, "/admin/appointments", nil, nil)
	body := w.Body.String()
	assert.Contains(t, body, "Appointment Cancelled")
	assert.Equal(t, 2, strings.Count(body, `class="status status-cancelled"`))
	assert.NotContains(t, body, `action="/admin/appointments/a1/cancel"`)

	// notices are shown once
	w = h.browser.do(http.MethodGet, "/admin/appointments", nil, nil)
	assert.NotContains(t, w.Body.String(), "Appointment Cancelled")
}

func TestCancelWithoutTokenQueuesNotice(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodPost, "/admin/appointments/a1/cancel", url.Values{}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/appointments", w.Header().Get("Location"))

	w = h.browser.do(http.MethodGet, "/admin/appointments", nil, nil)
	assert.Contains(t, w.Body.String(), "Not Authorized Login Again")
}

func TestAppointmentsAPI(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/api/v1/admin/appointments", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"unauthorized"}`, w.Body.String())

	w = h.browser.do(http.MethodGet, "/api/v1/admin/appointments?status=completed", nil, map[string]string{"aToken": adminToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Total int `json:"total"`
			Rows  []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Fee    string `json:"fee"`
			} `json:"rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 3, resp.Data.Total)
	require.Len(t, resp.Data.Rows, 1)
	assert.Equal(t, "a3", resp.Data.Rows[0].ID)
	assert.Equal(t, "completed", resp.Data.Rows[0].Status)
	assert.Equal(t, "$50", resp.Data.Rows[0].Fee)
}

func TestVerifySuccessRedirectsAndShowsNotice(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/verify?success=true&appointmentId=a1", nil, map[string]string{"token": userToken})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/my-appointments", w.Header().Get("Location"))

	w = h.browser.do(http.MethodGet, "/my-appointments", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Payment Successful")
	assert.Contains(t, w.Body.String(), "toast-success")
}

func TestVerifyFailureShowsServerMessage(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/verify?success=false&appointmentId=a1", nil, map[string]string{"token": userToken})
	require.Equal(t, http.StatusSeeOther, w.Code)

	w = h.browser.do(http.MethodGet, "/my-appointments", nil, nil)
	assert.Contains(t, w.Body.String(), "Payment Failed")
	assert.Contains(t, w.Body.String(), "toast-error")
}

func TestVerifyMissingParamsSkipsBackend(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/verify?success=true", nil, map[string]string{"token": userToken})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/my-appointments", w.Header().Get("Location"))
	assert.Zero(t, h.api.verifyCalls)

	w = h.browser.do(http.MethodGet, "/my-appointments", nil, nil)
	assert.Contains(t, w.Body.String(), "Missing required parameters")
}

func TestVerifyWithoutTokenSkipsBackend(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/verify?success=true&appointmentId=a1", nil, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Zero(t, h.api.verifyCalls)
}

func TestHealthAndMetrics(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())

	w = h.browser.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP","components":{"session_store":"UP","backend":"UP"}}`, w.Body.String())

	h.browser.do(http.MethodGet, "/admin/appointments", nil, map[string]string{"aToken": adminToken})

	w = h.browser.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
	assert.Contains(t, w.Body.String(), `test_backend_requests_total{operation="list_appointments",status="ok"} 1`)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

func TestLogoutDropsSessionAndTokens(t *testing.T) {
	h := setup(t)

	w := h.browser.do(http.MethodGet, "/admin/appointments", nil, map[string]string{"aToken": adminToken})
	require.Contains(t, w.Body.String(), "Ann")
	old := h.browser.cookies["portal_session"].Value

	w = h.browser.do(http.MethodPost, "/admin/logout", url.Values{}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin/appointments", w.Header().Get("Location"))

	// the browser drops expired cookies
	for name, c := range h.browser.cookies {
		if c.MaxAge < 0 {
			delete(h.browser.cookies, name)
		}
	}
	w = h.browser.do(http.MethodGet, "/admin/appointments", nil, nil)
	assert.Contains(t, w.Body.String(), "Sign in to the admin panel")
	assert.NotEqual(t, old, h.browser.cookies["portal_session"].Value)
}
