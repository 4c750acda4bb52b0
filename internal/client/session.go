package client

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chepyr/go-workboard/internal/models"
)

// Session holds the credentials of one signed-in user. It is created empty
// (or with a stored token), filled by Login and cleared by Logout.
type Session struct {
	mu    sync.RWMutex
	token string
	csrf  string
	user  *models.User
}

func NewSession(token string) *Session {
	return &Session{token: token}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Session) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrf
}

func (s *Session) SetCSRFToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrf = token
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) SetUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Clear forgets the token and user. The CSRF token is kept since it is not
// tied to a login.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
}

// Expired reports whether the token is a JWT whose exp claim lies before
// now. The signature is not checked; opaque tokens never expire locally.
func (s *Session) Expired(now time.Time) bool {
	tok := s.Token()
	if tok == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
