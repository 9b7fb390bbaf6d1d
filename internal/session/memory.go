package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-portal/internal/model"
)

// MemoryStore keeps sessions in process. Values are stored encoded so callers
// never share a *model.Session between requests.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, cleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	v, found := m.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	var s model.Session
	if err := json.Unmarshal(v.([]byte), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *model.Session) error {
	s.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.cache.Set(s.ID, raw, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
