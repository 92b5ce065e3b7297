package redis

import (
	"context"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackfit/trackfit/internal/store"
	"github.com/trackfit/trackfit/pkg/models"
)

const mockEmail = "jane@example.com"

var (
	ctx     = context.Background()
	rStore  *Redis
	rdis    *miniredis.Miniredis
	mockOTP = models.PendingOTP{
		Code:      "123456",
		Name:      "Jane Doe",
		ExpiresAt: time.Now().Add(10 * time.Minute).Truncate(time.Millisecond),
	}
	mockSess = models.Session{
		Email:     mockEmail,
		Name:      "Jane Doe",
		CreatedAt: time.Now().Truncate(time.Millisecond),
	}
)

func init() {
	rd, err := miniredis.Run()
	if err != nil {
		log.Println(err)
	}
	rdis = rd

	port, _ := strconv.Atoi(rd.Port())
	rStore = New(Conf{
		Host: rd.Host(),
		Port: port,
	})
}

func setup(t *testing.T) *Redis {
	rdis.FlushDB()
	err := rStore.SetOTP(ctx, mockEmail, mockOTP)
	require.NoError(t, err, "Failed to set up test OTP")

	t.Cleanup(func() {
		rdis.FlushDB()
	})

	return rStore
}

func TestStoreGetOTP(t *testing.T) {
	rStore := setup(t)

	o, err := rStore.GetOTP(ctx, mockEmail)
	assert.NoError(t, err, "Error getting OTP")
	assert.Equal(t, mockOTP.Code, o.Code, "code doesn't match")
	assert.Equal(t, mockOTP.Name, o.Name, "name doesn't match")
	assert.True(t, mockOTP.ExpiresAt.Equal(o.ExpiresAt), "expiry doesn't match")

	_, err = rStore.GetOTP(ctx, "nobody@example.com")
	assert.Equal(t, store.ErrNotExist, err, "OTP should not exist but it does")
}

func TestStoreReplaceOTP(t *testing.T) {
	rStore := setup(t)

	next := mockOTP
	next.Code = "999999"
	next.Name = "J. Doe"
	require.NoError(t, rStore.SetOTP(ctx, mockEmail, next))

	o, err := rStore.GetOTP(ctx, mockEmail)
	assert.NoError(t, err)
	assert.Equal(t, "999999", o.Code, "OTP wasn't replaced")
	assert.Equal(t, "J. Doe", o.Name, "name wasn't replaced")
}

func TestStoreDeleteOTP(t *testing.T) {
	rStore := setup(t)

	err := rStore.DeleteOTP(ctx, mockEmail)
	assert.NoError(t, err, "Error deleting OTP")

	_, err = rStore.GetOTP(ctx, mockEmail)
	assert.Equal(t, store.ErrNotExist, err, "OTP should not exist but it does")
}

func TestStoreNoEvictionWithoutGrace(t *testing.T) {
	rStore := setup(t)

	// Without a grace period, Redis never evicts the key on its own.
	rdis.FastForward(time.Hour)
	_, err := rStore.GetOTP(ctx, mockEmail)
	assert.NoError(t, err, "OTP was evicted")
}

func TestStoreExpiryGrace(t *testing.T) {
	rdis.FlushDB()
	t.Cleanup(func() { rdis.FlushDB() })

	port, _ := strconv.Atoi(rdis.Port())
	s := New(Conf{Host: rdis.Host(), Port: port, ExpiryGrace: time.Minute})
	defer s.Close()

	require.NoError(t, s.SetOTP(ctx, mockEmail, mockOTP))
	assert.True(t, rdis.TTL(s.makeKey("otp", mockEmail)) > 0, "no TTL set on OTP key")
}

func TestStoreSession(t *testing.T) {
	rStore := setup(t)

	_, err := rStore.GetSession(ctx, "tok")
	assert.Equal(t, store.ErrNotExist, err, "session should not exist but it does")

	require.NoError(t, rStore.SetSession(ctx, "tok", mockSess))
	s, err := rStore.GetSession(ctx, "tok")
	assert.NoError(t, err, "Error getting session")
	assert.Equal(t, mockSess.Email, s.Email)
	assert.Equal(t, mockSess.Name, s.Name)
	assert.True(t, mockSess.CreatedAt.Equal(s.CreatedAt), "created_at doesn't match")
}

func TestStorePing(t *testing.T) {
	assert.NoError(t, rStore.Ping(ctx))
}
