package auth

import (
	"sync"

	"ai_config/internal/logging"
)

var logger = logging.New("auth")

// IdentitySupplier exposes the current user, if any. Remote persistence is
// scoped by the returned id and deferred while there is none.
type IdentitySupplier interface {
	UserID() (string, bool)
}

// StaticSupplier holds an identity that can be swapped at runtime, e.g. on
// sign-in and sign-out.
type StaticSupplier struct {
	mu     sync.RWMutex
	userID string
}

// NewStaticSupplier returns a supplier for userID. An empty id means signed out.
func NewStaticSupplier(userID string) *StaticSupplier {
	return &StaticSupplier{userID: userID}
}

func (s *StaticSupplier) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// SetUserID replaces the current identity.
func (s *StaticSupplier) SetUserID(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// TokenSupplier derives the user from a signed session token. The token is
// re-verified on every call so an expired session reads as signed out.
type TokenSupplier struct {
	mu     sync.RWMutex
	token  string
	secret []byte
}

// NewTokenSupplier returns a supplier verifying tokens with secret.
func NewTokenSupplier(token string, secret []byte) *TokenSupplier {
	return &TokenSupplier{token: token, secret: secret}
}

func (s *TokenSupplier) UserID() (string, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", false
	}
	userID, err := DecodeSessionToken(token, s.secret)
	if err != nil {
		logger.Debug("session token rejected", "error", err)
		return "", false
	}
	return userID, true
}

// SetToken replaces the session token.
func (s *TokenSupplier) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
