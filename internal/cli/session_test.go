package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFileRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wsk")
	f, err := NewSessionFile(dir)
	require.NoError(t, err)

	_, err = f.Load()
	assert.True(t, errors.Is(err, ErrNoSession))

	want := Session{AccessToken: "tok", Player: "ana", APIBase: "http://x", ExpiresAt: time.Now().Add(time.Hour).UTC()}
	require.NoError(t, f.Save(want))

	info, err := os.Stat(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.Player, got.Player)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, f.Clear())
	_, err = f.Load()
	assert.True(t, errors.Is(err, ErrNoSession))
	require.NoError(t, f.Clear())
}

func TestSessionFileRejectsExpiredAndEmpty(t *testing.T) {
	f, err := NewSessionFile(t.TempDir())
	require.NoError(t, err)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	require.NoError(t, f.Save(Session{AccessToken: "tok", ExpiresAt: now.Add(-time.Minute)}))
	_, err = f.Load()
	assert.True(t, errors.Is(err, ErrSessionExpired))

	require.NoError(t, f.Save(Session{AccessToken: "tok"}))
	_, err = f.Load()
	assert.NoError(t, err, "sessions without expiry never lapse")

	require.NoError(t, f.Save(Session{Player: "ana"}))
	_, err = f.Load()
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestDefaultSessionFileUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	f, err := DefaultSessionFile()
	require.NoError(t, err)
	require.NoError(t, f.Save(Session{AccessToken: "tok"}))
	_, err = os.Stat(filepath.Join(home, ".wsk", "session.json"))
	assert.NoError(t, err)
}
