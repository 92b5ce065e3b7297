// Package logger is a Provider that "delivers" OTPs by writing them to the
// application log. It stands in for a real delivery channel in development
// and demo deployments.
package logger

import (
	"time"

	"github.com/trackfit/trackfit/pkg/models"
	"github.com/zerodha/logf"
)

const (
	providerID  = "log"
	channelName = "Log"
)

// Logger is the log Provider.
type Logger struct {
	lo logf.Logger
}

// New returns a log Provider that writes to lo.
func New(lo logf.Logger) *Logger {
	return &Logger{lo: lo}
}

// ID returns the Provider's ID.
func (l *Logger) ID() string {
	return providerID
}

// ChannelName returns the Provider's name.
func (l *Logger) ChannelName() string {
	return channelName
}

// ValidateAddress accepts any address.
func (l *Logger) ValidateAddress(to string) error {
	return nil
}

// Push writes the OTP to the log.
func (l *Logger) Push(msg models.Message, subject string, body []byte) error {
	l.lo.Info("otp issued",
		"to", msg.To,
		"code", msg.OTP,
		"valid", msg.TTL.String(),
		"expires_at", msg.ExpiresAt.Format(time.RFC3339))
	return nil
}

// MaxBodyLen returns the max permitted body size.
func (l *Logger) MaxBodyLen() int {
	return 0
}
