package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired session token")
	ErrBadPassphrase  = errors.New("facilitator passphrase rejected")
	ErrEmptyPrincipal = errors.New("session needs a player name")
)

type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Player      string    `json:"player"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Sessions maps opaque bearer tokens to player names. Tokens live in memory
// only; a restart logs everybody out but accounts survive in the store.
type Sessions struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]Session
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		ttl:    ttl,
		now:    time.Now,
		tokens: map[string]Session{},
	}
}

func (s *Sessions) Issue(player string) (Session, error) {
	if player == "" {
		return Session{}, ErrEmptyPrincipal
	}
	now := s.now().UTC()
	sess := Session{
		AccessToken: uuid.NewString(),
		TokenType:   "bearer",
		Player:      player,
		IssuedAt:    now,
	}
	if s.ttl > 0 {
		sess.ExpiresAt = now.Add(s.ttl)
	}
	s.mu.Lock()
	s.tokens[sess.AccessToken] = sess
	s.mu.Unlock()
	return sess, nil
}

// Resolve returns the player a token was issued to. Expired tokens are
// dropped on sight.
func (s *Sessions) Resolve(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	if !sess.ExpiresAt.IsZero() && s.now().After(sess.ExpiresAt) {
		delete(s.tokens, token)
		return "", ErrInvalidToken
	}
	return sess.Player, nil
}

func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Clear drops every session, used when the game is reset.
func (s *Sessions) Clear() {
	s.mu.Lock()
	s.tokens = map[string]Session{}
	s.mu.Unlock()
}

// Passphrase gates facilitator operations with a shared secret.
type Passphrase struct {
	secret []byte
}

func NewPassphrase(secret string) Passphrase {
	return Passphrase{secret: []byte(secret)}
}

func (p Passphrase) Check(given string) error {
	if len(p.secret) == 0 || subtle.ConstantTimeCompare(p.secret, []byte(given)) != 1 {
		return ErrBadPassphrase
	}
	return nil
}
