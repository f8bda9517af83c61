package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
)

// MemoryStore keeps challenges in process-local maps guarded by a mutex.
// Entries are dropped lazily on read once expired. State is not shared
// across instances; use RedisStore for that.
type MemoryStore struct {
	mu     sync.Mutex
	emails map[string]*EmailChallenge
	phones map[string]phoneCorrelation
}

type phoneCorrelation struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		emails: make(map[string]*EmailChallenge),
		phones: make(map[string]phoneCorrelation),
	}
}

func (s *MemoryStore) SaveEmailChallenge(_ context.Context, email string, ch *EmailChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	s.emails[email] = &cp
	return nil
}

func (s *MemoryStore) GetEmailChallenge(_ context.Context, email string) (*EmailChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.emails[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryStore) DeleteEmailChallenge(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.emails, email)
	return nil
}

func (s *MemoryStore) SavePhoneCorrelation(_ context.Context, phone, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phones[phone] = phoneCorrelation{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) GetPhoneCorrelation(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.phones[phone]
	if !ok {
		return "", common.ErrorNotFound
	}
	if !c.expiresAt.After(time.Now()) {
		delete(s.phones, phone)
		return "", common.ErrorNotFound
	}
	return c.userID, nil
}

func (s *MemoryStore) DeletePhoneCorrelation(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.phones, phone)
	return nil
}
