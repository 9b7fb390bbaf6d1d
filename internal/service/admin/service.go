package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-portal/internal/backend"
	"github.com/jwalitptl/clinic-portal/internal/model"
)

var ErrNoToken = errors.New("admin token missing")

// Backend is the part of the booking API the admin context needs.
type Backend interface {
	ListAppointments(ctx context.Context, adminToken string) ([]model.Appointment, error)
	CancelAppointment(ctx context.Context, adminToken, id string) (string, error)
}

// Context is the admin session state the appointment views read and act on.
type Context interface {
	AdminToken() string
	Appointments() []model.Appointment
	// FetchAllAppointments replaces the held collection with the backend's.
	FetchAllAppointments(ctx context.Context) error
	// CancelAppointment cancels id on the backend, then refreshes the collection.
	CancelAppointment(ctx context.Context, id string) error
}

type Service struct {
	backend Backend
	now     func() time.Time
}

func NewService(b Backend) *Service {
	return &Service{backend: b, now: time.Now}
}

// Bind returns the Context backed by s. Results and notices are written into
// s; the caller is responsible for saving it.
func (svc *Service) Bind(s *model.Session) *SessionContext {
	return &SessionContext{svc: svc, session: s}
}

type SessionContext struct {
	svc     *Service
	session *model.Session
}

func (c *SessionContext) AdminToken() string {
	return c.session.AdminToken
}

func (c *SessionContext) Appointments() []model.Appointment {
	return c.session.Appointments
}

func (c *SessionContext) FetchAllAppointments(ctx context.Context) error {
	if c.session.AdminToken == "" {
		return ErrNoToken
	}

	list, err := c.svc.backend.ListAppointments(ctx, c.session.AdminToken)
	if err != nil {
		if ctx.Err() == nil {
			c.session.AddNotice(model.ErrorNotice(backend.Message(err)))
		}
		log.Warn().Err(err).Str("session_id", c.session.ID).Msg("failed to fetch appointments")
		return fmt.Errorf("fetch appointments: %w", err)
	}

	c.session.Appointments = list
	c.session.FetchedAt = c.svc.now().UTC()
	return nil
}

func (c *SessionContext) CancelAppointment(ctx context.Context, id string) error {
	if c.session.AdminToken == "" {
		return ErrNoToken
	}

	msg, err := c.svc.backend.CancelAppointment(ctx, c.session.AdminToken, id)
	if err != nil {
		c.session.AddNotice(model.ErrorNotice(backend.Message(err)))
		log.Warn().Err(err).Str("appointment_id", id).Msg("failed to cancel appointment")
		return fmt.Errorf("cancel appointment: %w", err)
	}

	if msg == "" {
		msg = "Appointment Cancelled"
	}
	c.session.AddNotice(model.SuccessNotice(msg))
	log.Info().Str("appointment_id", id).Msg("appointment cancelled")

	return c.FetchAllAppointments(ctx)
}
