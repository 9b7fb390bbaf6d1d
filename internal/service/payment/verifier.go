package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-portal/internal/backend"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/pkg/metrics"
)

const (
	MissingParamsMessage = "Missing required parameters"
	// GenericErrorMessage is shown when the failure carries no backend message.
	GenericErrorMessage = "We could not confirm your payment. Please check your appointments."
)

type State int

const (
	StateIdle State = iota
	StatePending
	StateVerifying
	StateSucceeded
	StateFailed
	StateAborted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type Backend interface {
	VerifyStripe(ctx context.Context, userToken string, req model.VerifyRequest) (*model.VerifyResponse, error)
}

// Params are read once from the checkout redirect and the session.
type Params struct {
	Token         string
	Success       string
	AppointmentID string
}

func (p Params) complete() bool {
	return p.Token != "" && p.Success != "" && p.AppointmentID != ""
}

// Outcome is the result of one run. Redirect is always set; Notice is nil
// only for aborted runs.
type Outcome struct {
	Trail    []State
	Notice   *model.Notice
	Redirect string
	// Called reports whether the backend was contacted.
	Called bool
}

// Result is the last state before StateCompleted.
func (o Outcome) Result() State {
	if len(o.Trail) < 2 {
		return StateIdle
	}
	return o.Trail[len(o.Trail)-2]
}

type Verifier struct {
	backend  Backend
	redirect string
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]*inflight
}

type inflight struct {
	cancel context.CancelFunc
}

func NewVerifier(b Backend, redirect string, m *metrics.Metrics) *Verifier {
	if m == nil {
		m = metrics.NewMetrics("portal", prometheus.NewRegistry())
	}
	return &Verifier{
		backend:  b,
		redirect: redirect,
		metrics:  m,
		inflight: make(map[string]*inflight),
	}
}

type flow struct {
	trail []State
}

func (f *flow) to(s State) {
	f.trail = append(f.trail, s)
}

// Verify runs Idle -> Pending -> Verifying -> Succeeded|Failed|Aborted ->
// Completed. Incomplete params skip straight from Pending to Completed with
// an error notice. A later run with the same key cancels an earlier one still
// in flight; cancellation of ctx aborts the run without a notice, while an
// expired deadline fails it like any other transport error.
func (v *Verifier) Verify(ctx context.Context, key string, p Params) Outcome {
	f := &flow{trail: []State{StateIdle}}
	f.to(StatePending)

	out := Outcome{Redirect: v.redirect}
	if !p.complete() {
		n := model.ErrorNotice(MissingParamsMessage)
		out.Notice = &n
		f.to(StateCompleted)
		out.Trail = f.trail
		v.metrics.Verifications.WithLabelValues("missing_params").Inc()
		log.Warn().
			Bool("has_token", p.Token != "").
			Str("appointment_id", p.AppointmentID).
			Msg("payment verification skipped: missing parameters")
		return out
	}

	ctx, done := v.begin(ctx, key)
	defer done()

	f.to(StateVerifying)
	out.Called = true
	resp, err := v.backend.VerifyStripe(ctx, p.Token, model.VerifyRequest{
		Success:       p.Success,
		AppointmentID: p.AppointmentID,
	})

	var n model.Notice
	switch {
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		f.to(StateAborted)
		log.Info().Err(err).Str("appointment_id", p.AppointmentID).Msg("payment verification aborted")
	case err != nil:
		f.to(StateFailed)
		n = model.ErrorNotice(failureMessage(err))
		out.Notice = &n
		log.Error().Err(err).Str("appointment_id", p.AppointmentID).Msg("payment verification request failed")
	case resp.Success:
		f.to(StateSucceeded)
		n = model.SuccessNotice(orDefault(resp.Message, "Payment Successful"))
		out.Notice = &n
	default:
		f.to(StateFailed)
		n = model.ErrorNotice(orDefault(resp.Message, GenericErrorMessage))
		out.Notice = &n
	}

	f.to(StateCompleted)
	out.Trail = f.trail
	v.metrics.Verifications.WithLabelValues(out.Result().String()).Inc()
	return out
}

// begin registers a cancellable run for key, superseding any earlier one.
func (v *Verifier) begin(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	if key == "" {
		return ctx, cancel
	}

	cur := &inflight{cancel: cancel}
	v.mu.Lock()
	if prev, ok := v.inflight[key]; ok {
		prev.cancel()
	}
	v.inflight[key] = cur
	v.mu.Unlock()

	return ctx, func() {
		cancel()
		v.mu.Lock()
		if v.inflight[key] == cur {
			delete(v.inflight, key)
		}
		v.mu.Unlock()
	}
}

// InFlight returns the number of runs currently registered.
func (v *Verifier) InFlight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.inflight)
}

func failureMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericErrorMessage
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
