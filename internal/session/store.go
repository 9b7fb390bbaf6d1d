// Package session persists per-browser portal state between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

var ErrNotFound = errors.New("session not found")

// Store keeps sessions keyed by ID. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// New returns an empty session with a fresh ID.
func New() *model.Session {
	now := time.Now().UTC()
	return &model.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidID rejects cookie values that could not have been issued by New.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
