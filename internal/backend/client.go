// Package backend is the HTTP client for the clinic booking API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
)

var tracer = otel.Tracer("clinic-portal/internal/backend")

const (
	adminTokenHeader = "aToken"
	userTokenHeader  = "token"

	maxErrorBody = 64 << 10
)

const (
	opListAppointments  = "list_appointments"
	opCancelAppointment = "cancel_appointment"
	opVerifyStripe      = "verify_stripe"
)

type Config struct {
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold int
	BreakerTimeout   time.Duration
}

// APIError is a non-2xx answer, or a {success:false} answer where one is not
// an expected outcome. Message carries the backend's own message when it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if m == nil {
		m = metrics.NewMetrics("portal", prometheus.NewRegistry())
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:             "booking-backend",
			MaxRequests:      1,
			Timeout:          cfg.BreakerTimeout,
			FailureThreshold: cfg.FailureThreshold,
			IsSuccessful:     countsAsHealthy,
		}),
		metrics: m,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type appointmentDTO struct {
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

func (d appointmentDTO) toModel() model.Appointment {
	return model.Appointment{
		ID: d.ID,
		Patient: model.PatientRef{
			Name:  d.UserData.Name,
			Image: d.UserData.Image,
			DOB:   d.UserData.DOB,
		},
		Doctor: model.DoctorRef{
			Name:  d.DocData.Name,
			Image: d.DocData.Image,
		},
		SlotDate:  d.SlotDate,
		SlotTime:  d.SlotTime,
		Amount:    d.Amount,
		Cancelled: d.Cancelled,
		Completed: d.IsCompleted,
	}
}

// ListAppointments fetches every appointment visible to the admin token.
func (c *Client) ListAppointments(ctx context.Context, adminToken string) ([]model.Appointment, error) {
	var resp struct {
		envelope
		Appointments []appointmentDTO `json:"appointments"`
	}
	hdr := http.Header{}
	hdr.Set(adminTokenHeader, adminToken)

	status, err := c.do(ctx, opListAppointments, http.MethodGet, "/api/admin/appointments", hdr, nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{Status: status, Message: resp.Message}
	}

	out := make([]model.Appointment, 0, len(resp.Appointments))
	for _, d := range resp.Appointments {
		out = append(out, d.toModel())
	}
	return out, nil
}

// CancelAppointment asks the backend to cancel id and returns its message.
func (c *Client) CancelAppointment(ctx context.Context, adminToken, id string) (string, error) {
	var resp envelope
	hdr := http.Header{}
	hdr.Set(adminTokenHeader, adminToken)

	body := map[string]string{"appointmentId": id}
	status, err := c.do(ctx, opCancelAppointment, http.MethodPost, "/api/admin/cancel-appointment", hdr, body, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &APIError{Status: status, Message: resp.Message}
	}
	return resp.Message, nil
}

// VerifyStripe confirms a checkout outcome. A {success:false} answer is a
// valid result and is returned without error.
func (c *Client) VerifyStripe(ctx context.Context, userToken string, req model.VerifyRequest) (*model.VerifyResponse, error) {
	var resp model.VerifyResponse
	hdr := http.Header{}
	hdr.Set(userTokenHeader, userToken)

	if _, err := c.do(ctx, opVerifyStripe, http.MethodPost, "/api/user/verifyStripe", hdr, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, hdr http.Header, body, out interface{}) (int, error) {
	ctx, span := tracer.Start(ctx, "backend."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	)

	start := time.Now()
	var status int
	err := c.breaker.Execute(func() error {
		var err error
		status, err = c.roundTrip(ctx, method, path, hdr, body, out)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = fmt.Errorf("backend: %s: %w", op, err)
	}

	c.metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.BackendRequests.WithLabelValues(op, metrics.Status(err)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return status, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, hdr http.Header, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("backend: build request: %w", err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var env envelope
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("backend: decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

// countsAsHealthy keeps client errors and caller cancellations from opening the breaker.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError
}

// Message returns the most specific human-readable text for err: the backend's
// own message when it sent one, otherwise the transport error text.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
