package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsIssueResolve(t *testing.T) {
	s := NewSessions(0)
	sess, err := s.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.NotEmpty(t, sess.AccessToken)

	player, err := s.Resolve(sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", player)

	_, err = s.Resolve("nope")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Issue("")
	assert.ErrorIs(t, err, ErrEmptyPrincipal)
}

func TestSessionsRevokeAndClear(t *testing.T) {
	s := NewSessions(0)
	a, err := s.Issue("alice")
	require.NoError(t, err)
	b, err := s.Issue("bob")
	require.NoError(t, err)

	s.Revoke(a.AccessToken)
	_, err = s.Resolve(a.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.Clear()
	_, err = s.Resolve(b.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionsExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewSessions(time.Hour)
	s.now = func() time.Time { return now }

	sess, err := s.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	now = now.Add(2 * time.Hour)
	_, err = s.Resolve(sess.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassphrase(t *testing.T) {
	p := NewPassphrase("8888")
	assert.NoError(t, p.Check("8888"))
	assert.ErrorIs(t, p.Check("8889"), ErrBadPassphrase)
	assert.ErrorIs(t, NewPassphrase("").Check(""), ErrBadPassphrase)
}
