package appointment

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/admin"
)

var ErrNotCancellable = errors.New("only pending appointments can be cancelled")

// Filter is the list view's local filter state.
type Filter struct {
	DoctorQuery string
	Status      model.StatusFilter
}

func NewFilter(doctorQuery, status string) Filter {
	return Filter{
		DoctorQuery: strings.TrimSpace(doctorQuery),
		Status:      model.ParseStatusFilter(status),
	}
}

// Match reports whether a passes both the doctor-name and the status predicate.
func (f Filter) Match(a model.Appointment) bool {
	if !strings.Contains(strings.ToLower(a.Doctor.Name), strings.ToLower(f.DoctorQuery)) {
		return false
	}
	return f.Status.Matches(a.Status())
}

// Apply returns the matching appointments in their original order. The input
// is not modified.
func Apply(list []model.Appointment, f Filter) []model.Appointment {
	out := make([]model.Appointment, 0, len(list))
	for _, a := range list {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

type Formatter interface {
	SlotDate(slotDate string) string
	Age(dob string) (int, bool)
	Fee(amount float64) string
}

// Row is one rendered line of the appointment table.
type Row struct {
	Index        int                     `json:"index"`
	ID           string                  `json:"id"`
	PatientName  string                  `json:"patient_name"`
	PatientImage string                  `json:"patient_image"`
	Age          int                     `json:"age"`
	AgeKnown     bool                    `json:"age_known"`
	When         string                  `json:"when"`
	DoctorName   string                  `json:"doctor_name"`
	DoctorImage  string                  `json:"doctor_image"`
	Fee          string                  `json:"fee"`
	Status       model.AppointmentStatus `json:"status"`
	Cancellable  bool                    `json:"cancellable"`
}

func BuildRows(list []model.Appointment, fm Formatter) []Row {
	rows := make([]Row, 0, len(list))
	for i, a := range list {
		age, ok := fm.Age(a.Patient.DOB)
		rows = append(rows, Row{
			Index:        i + 1,
			ID:           a.ID,
			PatientName:  a.Patient.Name,
			PatientImage: a.Patient.Image,
			Age:          age,
			AgeKnown:     ok,
			When:         fm.SlotDate(a.SlotDate) + ", " + a.SlotTime,
			DoctorName:   a.Doctor.Name,
			DoctorImage:  a.Doctor.Image,
			Fee:          fm.Fee(a.Amount),
			Status:       a.Status(),
			Cancellable:  a.Cancellable(),
		})
	}
	return rows
}

type View struct {
	Filter Filter
	Rows   []Row
	// Total is the size of the held collection before filtering.
	Total         int
	Authenticated bool
	// Stale is set when the refresh failed and Rows come from earlier data.
	Stale bool
}

type Service struct {
	fm Formatter
}

func NewService(fm Formatter) *Service {
	return &Service{fm: fm}
}

// List refreshes the held collection when an admin token is present, then
// filters whatever the context holds.
func (s *Service) List(ctx context.Context, ac admin.Context, f Filter) *View {
	view := &View{Filter: f, Authenticated: ac.AdminToken() != ""}

	if view.Authenticated {
		if err := ac.FetchAllAppointments(ctx); err != nil {
			log.Debug().Err(err).Msg("rendering held appointments after failed refresh")
			view.Stale = true
		}
	}

	all := ac.Appointments()
	view.Total = len(all)
	view.Rows = BuildRows(Apply(all, f), s.fm)
	return view
}

// Cancel forwards to the context unless the held record is already cancelled
// or completed. IDs not in the held collection are forwarded as-is.
func (s *Service) Cancel(ctx context.Context, ac admin.Context, id string) error {
	if ac.AdminToken() == "" {
		return admin.ErrNoToken
	}
	for _, a := range ac.Appointments() {
		if a.ID == id && !a.Cancellable() {
			return ErrNotCancellable
		}
	}
	return ac.CancelAppointment(ctx, id)
}
