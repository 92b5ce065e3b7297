package store

import (
	"context"
	"errors"

	"github.com/trackfit/trackfit/pkg/models"
)

var (
	// ErrNotExist is thrown when a pending OTP or a session (requested by
	// key) does not exist.
	ErrNotExist = errors.New("the record does not exist")

	// ErrClosed is thrown on calls to a store that has been closed.
	ErrClosed = errors.New("the store is closed")
)

// Store represents a storage backend where pending OTPs and sessions
// are kept. Expired OTPs are not evicted by the store; the caller
// deletes them when it observes them.
type Store interface {
	// SetOTP sets a pending OTP against a key, replacing any existing one.
	SetOTP(ctx context.Context, key string, otp models.PendingOTP) error

	// GetOTP returns the pending OTP saved against a key.
	GetOTP(ctx context.Context, key string) (models.PendingOTP, error)

	// DeleteOTP deletes the pending OTP saved against a key.
	DeleteOTP(ctx context.Context, key string) error

	// SetSession records a session against a token.
	SetSession(ctx context.Context, token string, s models.Session) error

	// GetSession returns the session recorded against a token.
	GetSession(ctx context.Context, token string) (models.Session, error)

	// Ping checks if store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store. All further calls fail with ErrClosed.
	Close() error
}
