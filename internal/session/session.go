// Package session holds the opaque token that scopes one conversation with an agent.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// NewID returns a fresh random token (UUIDv4, 122 random bits).
func NewID() string {
	return uuid.NewString()
}

// Session is a lazily created, resettable session token.
type Session struct {
	mu sync.Mutex
	id string
}

// New returns a session whose token is generated on first use.
func New() *Session {
	return &Session{}
}

// ID returns the current token, creating it on first call.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		s.id = NewID()
	}
	return s.id
}

// Reset discards the current token and returns a new one. Requests already
// sent keep the token they were sent with.
func (s *Session) Reset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = NewID()
	return s.id
}
