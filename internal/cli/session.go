package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNoSession      = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired")
)

// Session is the student login cached on disk between commands.
type Session struct {
	AccessToken string    `json:"access_token"`
	Player      string    `json:"player"`
	APIBase     string    `json:"api_base"`
	ExpiresAt   time.Time `json:"expires_at"`
	// Round is the last round the server reported open.
	Round int `json:"round,omitempty"`
}

// Expired reports whether the server will already have dropped the token.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionFile stores one Session as JSON with owner-only permissions.
type SessionFile struct {
	path string
	now  func() time.Time
}

func NewSessionFile(dir string) (*SessionFile, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionFile{path: filepath.Join(dir, "session.json"), now: time.Now}, nil
}

// DefaultSessionFile lives in ~/.wsk next to the offline queue.
func DefaultSessionFile() (*SessionFile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewSessionFile(filepath.Join(home, ".wsk"))
}

func (f *SessionFile) Save(s Session) error {
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, body, 0o600)
}

// Load returns ErrNoSession when nobody is logged in and ErrSessionExpired
// once the token has lapsed.
func (f *SessionFile) Load() (Session, error) {
	body, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, ErrNoSession
	}
	if s.Expired(f.now()) {
		return Session{}, fmt.Errorf("%w at %s", ErrSessionExpired, s.ExpiresAt.Local().Format(time.Kitchen))
	}
	return s, nil
}

func (f *SessionFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
