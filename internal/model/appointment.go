package model

import (
	"strings"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// PatientRef is the patient snapshot embedded in an appointment by the backend.
type PatientRef struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	DOB   string `json:"dob"`
}

type DoctorRef struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Appointment is owned by the booking backend; the portal only reads it.
type Appointment struct {
	ID        string     `json:"id"`
	Patient   PatientRef `json:"patient"`
	Doctor    DoctorRef  `json:"doctor"`
	SlotDate  string     `json:"slot_date"`
	SlotTime  string     `json:"slot_time"`
	Amount    float64    `json:"amount"`
	Cancelled bool       `json:"cancelled"`
	Completed bool       `json:"completed"`
}

// Status folds the two backend flags into one state. The backend never sets
// both, but if it does the appointment is treated as cancelled.
func (a Appointment) Status() AppointmentStatus {
	switch {
	case a.Cancelled:
		return AppointmentStatusCancelled
	case a.Completed:
		return AppointmentStatusCompleted
	default:
		return AppointmentStatusPending
	}
}

// Cancellable reports whether the cancel action may be offered for a.
func (a Appointment) Cancellable() bool {
	return a.Status() == AppointmentStatusPending
}

// StatusFilter is the status category selected on the appointment list.
type StatusFilter string

const (
	StatusFilterAll       StatusFilter = "all"
	StatusFilterPending   StatusFilter = "pending"
	StatusFilterCompleted StatusFilter = "completed"
	StatusFilterCancelled StatusFilter = "cancelled"
)

// StatusFilters lists the categories in display order.
var StatusFilters = []StatusFilter{
	StatusFilterAll,
	StatusFilterPending,
	StatusFilterCompleted,
	StatusFilterCancelled,
}

// ParseStatusFilter maps unknown or empty input to StatusFilterAll.
func ParseStatusFilter(s string) StatusFilter {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case StatusFilterPending, StatusFilterCompleted, StatusFilterCancelled:
		return f
	default:
		return StatusFilterAll
	}
}

func (f StatusFilter) Label() string {
	switch f {
	case StatusFilterPending:
		return "Pending"
	case StatusFilterCompleted:
		return "Completed"
	case StatusFilterCancelled:
		return "Cancelled"
	default:
		return "All Appointments"
	}
}

// Matches reports whether an appointment in status s belongs to category f.
func (f StatusFilter) Matches(s AppointmentStatus) bool {
	switch f {
	case StatusFilterPending:
		return s == AppointmentStatusPending
	case StatusFilterCompleted:
		return s == AppointmentStatusCompleted
	case StatusFilterCancelled:
		return s == AppointmentStatusCancelled
	default:
		return true
	}
}
