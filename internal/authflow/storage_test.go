package authflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackfit/trackfit/pkg/models"
)

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := NewFileStorage(path)

	_, err := s.Get(KeyToken)
	assert.Equal(t, ErrNoValue, err)

	sess := Session{Token: dummyToken, User: models.User{Email: dummyEmail, Name: dummyName}}
	require.NoError(t, SaveSession(s, sess))

	// A fresh instance reads what the previous one wrote.
	s2 := NewFileStorage(path)
	tok, err := s2.Get(KeyToken)
	require.NoError(t, err)
	assert.Equal(t, dummyToken, tok)

	u, err := LoadUser(s2)
	require.NoError(t, err)
	assert.Equal(t, sess.User, u)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), "session file is world readable")
}

func TestFileStorageCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStorage(path).Get(KeyToken)
	assert.Error(t, err)
	assert.NotEqual(t, ErrNoValue, err)
}

func TestGate(t *testing.T) {
	s := NewMemStorage()

	redir, ok, err := Gate(s, "", "/tracker")
	require.NoError(t, err)
	assert.False(t, ok, "gate passed without a token")
	assert.Equal(t, "/auth?redirect=%2Ftracker", redir)

	require.NoError(t, s.Set(KeyToken, dummyToken))
	redir, ok, err = Gate(s, "", "/tracker")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, redir)
}
