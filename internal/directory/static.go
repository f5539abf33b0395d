package directory

import (
	"context"
	"sync"

	"otp/internal/domain"
)

// Static is an in-memory directory for dev environments and tests.
type Static struct {
	mu       sync.RWMutex
	contacts map[domain.UserID]map[domain.Channel]string
}

func NewStatic() *Static {
	return &Static{contacts: make(map[domain.UserID]map[domain.Channel]string)}
}

func (s *Static) Set(userID domain.UserID, channel domain.Channel, contactValue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contacts[userID] == nil {
		s.contacts[userID] = make(map[domain.Channel]string)
	}
	s.contacts[userID][channel] = contactValue
}

func (s *Static) OwnsContact(_ context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contacts[userID][channel] == contactValue, nil
}
