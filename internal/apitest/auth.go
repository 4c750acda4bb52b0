package apitest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/chepyr/go-workboard/internal/models"
)

type ctxKey int

const userKey ctxKey = iota

func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey).(*models.User)
	return u
}

func (s *Server) issueToken(sub string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"jti": uuid.NewString(),
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// bearer extracts the token from "Token <key>" or "Bearer <key>".
func bearer(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return "", false
	}
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		tok = strings.TrimSpace(tok)
		return tok, tok != ""
	}
	return "", false
}

// auth verifies the token, rejects revoked ones and puts the user into the
// request context.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			sendError(w, "Authentication credentials were not provided.", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			sendError(w, "Invalid token.", http.StatusUnauthorized)
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			sendError(w, "Invalid token claims", http.StatusUnauthorized)
			return
		}

		s.mu.Lock()
		revoked := s.revoked[tokenString]
		s.mu.Unlock()
		if revoked {
			sendError(w, "Invalid token.", http.StatusUnauthorized)
			return
		}
		if s.requireCSRF && unsafeMethod(r.Method) && !s.validCSRF(r.Header.Get("X-CSRFToken")) {
			sendError(w, "CSRF Failed: CSRF token missing or incorrect.", http.StatusForbidden)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		u, err := s.Users.GetByID(ctx, sub)
		if err != nil {
			sendError(w, "Invalid token.", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) validCSRF(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tok != "" && s.csrf[tok]
}

func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	tok := uuid.NewString()
	s.mu.Lock()
	s.csrf[tok] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		clientIP = r.RemoteAddr
	}
	if !s.limiter.Allow(clientIP) {
		s.log.WithFields(logrus.Fields{"remote": clientIP}).Warn("login rate limit exceeded")
		sendError(w, "Too many login attempts. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	if input.Username == "" || input.Password == "" {
		sendError(w, "Please provide both username and password", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	u, hash, err := s.Users.GetByUsername(ctx, input.Username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.Password))
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"username": input.Username,
			"remote":   clientIP,
		}).Info("login rejected")
		sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	tok, err := s.issueToken(string(u.ID), 24*time.Hour)
	if err != nil {
		s.log.WithError(err).Error("cannot create token")
		sendError(w, "Cannot create token", http.StatusInternalServerError)
		return
	}
	s.log.WithField("user_id", u.ID).Debug("user logged in")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    tok,
		"user_id":  u.ID,
		"username": u.Username,
		"email":    u.Email,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, _ := bearer(r.Header.Get("Authorization"))
	s.mu.Lock()
	s.revoked[tok] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out."})
}
