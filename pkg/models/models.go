package models

import (
	"errors"
	"regexp"
	"time"
)

// MaxEmailLen is the longest e-mail address a Provider accepts.
const MaxEmailLen = 254

var (
	reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

	// ErrInvalidEmail is returned by ValidateEmail.
	ErrInvalidEmail = errors.New("invalid e-mail address")
)

// PendingOTP is an issued code awaiting verification. It's keyed
// by the lower-cased e-mail it was issued for.
type PendingOTP struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired tells if the OTP's validity window has elapsed at t.
func (p PendingOTP) Expired(t time.Time) bool {
	return t.After(p.ExpiresAt)
}

// User is the identity an OTP verification proves.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is an authenticated identity recorded against an opaque token.
type Session struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User returns the identity bound to the session.
func (s Session) User() User {
	return User{Email: s.Email, Name: s.Name}
}

// Message is an OTP that's to be delivered to an address by a Provider.
type Message struct {
	To        string        `json:"to"`
	Name      string        `json:"name"`
	OTP       string        `json:"otp"`
	TTL       time.Duration `json:"-"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ProviderConfig represents the common configuration types for a Provider.
type ProviderConfig struct {
	Enabled  bool   `json:"enabled"`
	Template string `json:"template"`
	Subject  string `json:"subject"`
}

// Provider is an interface for a generic messaging backend that
// delivers OTPs, for instance, e-mail, a webhook, or the log.
type Provider interface {
	// ID returns the name of the Provider.
	ID() string

	// ChannelName returns the name of the channel the provider is
	// delivering on, for example "E-mail".
	ChannelName() string

	// ValidateAddress validates the 'to' address the Provider
	// is supposed to send the OTP to.
	ValidateAddress(to string) error

	// Push pushes a message. Depending on the the Provider,
	// implementation, this can either cause the message to
	// be sent immediately or be queued.
	Push(msg Message, subject string, body []byte) error

	// MaxBodyLen returns the maximum permitted length of the text
	// that can be sent by the Provider. 0 means unlimited.
	MaxBodyLen() int
}

// ValidateEmail checks that addr is a single, plausible e-mail address.
// Deliverability is left to the channel.
func ValidateEmail(addr string) error {
	if len(addr) > MaxEmailLen || !reEmail.MatchString(addr) {
		return ErrInvalidEmail
	}
	return nil
}
