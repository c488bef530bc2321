package services

import (
	"sync"

	"shakti-alert-backend/internal/models"
)

// Session holds the single currently authenticated user of the process.
// It is set on login and register, cleared on logout, and read by value.
type Session struct {
	mu   sync.RWMutex
	user *models.User
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{}
}

// Set makes user the current session
func (s *Session) Set(user models.User) {
	u := user.Clone()
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}

// Clear ends the current session, if any
func (s *Session) Clear() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// CurrentUser returns a copy of the session user, or nil
func (s *Session) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := s.user.Clone()
	return &u
}
