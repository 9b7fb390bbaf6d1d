package model

import (
	"time"
)

// Session is the per-browser state the portal keeps between requests.
type Session struct {
	ID           string        `json:"id"`
	AdminToken   string        `json:"admin_token,omitempty"`
	UserToken    string        `json:"user_token,omitempty"`
	Appointments []Appointment `json:"appointments,omitempty"`
	FetchedAt    time.Time     `json:"fetched_at,omitempty"`
	Notices      []Notice      `json:"notices,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (s *Session) AddNotice(n Notice) {
	s.Notices = append(s.Notices, n)
}

// TakeNotices returns the queued notices and clears the queue.
func (s *Session) TakeNotices() []Notice {
	n := s.Notices
	s.Notices = nil
	return n
}

// FindAppointment returns the held appointment with the given ID.
func (s *Session) FindAppointment(id string) (Appointment, bool) {
	for _, a := range s.Appointments {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}
