// Package mem is an in-process implementation of the store. Everything
// held in it is lost when the process exits.
package mem

import (
	"context"
	"sync"

	"github.com/trackfit/trackfit/internal/store"
	"github.com/trackfit/trackfit/pkg/models"
)

// Mem implements a memory Store.
type Mem struct {
	mu       sync.RWMutex
	otps     map[string]models.PendingOTP
	sessions map[string]models.Session
	closed   bool
}

// New returns an empty memory store.
func New() *Mem {
	return &Mem{
		otps:     make(map[string]models.PendingOTP),
		sessions: make(map[string]models.Session),
	}
}

// SetOTP sets a pending OTP against a key, replacing any existing one.
func (m *Mem) SetOTP(_ context.Context, key string, otp models.PendingOTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return store.ErrClosed
	}
	m.otps[key] = otp
	return nil
}

// GetOTP returns the pending OTP saved against a key.
func (m *Mem) GetOTP(_ context.Context, key string) (models.PendingOTP, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return models.PendingOTP{}, store.ErrClosed
	}

	out, ok := m.otps[key]
	if !ok {
		return out, store.ErrNotExist
	}
	return out, nil
}

// DeleteOTP deletes the pending OTP saved against a key.
func (m *Mem) DeleteOTP(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return store.ErrClosed
	}
	delete(m.otps, key)
	return nil
}

// SetSession records a session against a token.
func (m *Mem) SetSession(_ context.Context, token string, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return store.ErrClosed
	}
	m.sessions[token] = s
	return nil
}

// GetSession returns the session recorded against a token.
func (m *Mem) GetSession(_ context.Context, token string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return models.Session{}, store.ErrClosed
	}

	out, ok := m.sessions[token]
	if !ok {
		return out, store.ErrNotExist
	}
	return out, nil
}

// Ping fails only when the store has been closed.
func (m *Mem) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return store.ErrClosed
	}
	return nil
}

// Close discards all OTPs and sessions.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.otps = nil
	m.sessions = nil
	m.closed = true
	return nil
}
