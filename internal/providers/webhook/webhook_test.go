package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackfit/trackfit/pkg/models"
)

func TestPush(t *testing.T) {
	var (
		got  Payload
		user string
		pass string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w, err := New(Config{URL: srv.URL, Username: "u", Password: "p"})
	require.NoError(t, err)

	exp := time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC)
	err = w.Push(models.Message{
		To:        "jane@example.com",
		Name:      "Jane Doe",
		OTP:       "123456",
		ExpiresAt: exp,
	}, "Your code", []byte("code 123456"))
	assert.NoError(t, err, "push failed")

	assert.Equal(t, "u", user, "basic auth user doesn't match")
	assert.Equal(t, "p", pass, "basic auth password doesn't match")
	assert.Equal(t, "jane@example.com", got.To)
	assert.Equal(t, "123456", got.OTP)
	assert.Equal(t, "Your code", got.Subject)
	assert.Equal(t, "code 123456", got.Body)
	assert.True(t, exp.Equal(got.ExpiresAt))
}

func TestPushUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	err = w.Push(models.Message{To: "jane@example.com", OTP: "123456"}, "", nil)
	assert.Error(t, err, "upstream error wasn't reported")
}

func TestNewWithoutURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
