// Package smtp delivers OTP e-mails over an SMTP connection pool.
package smtp

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/knadh/smtppool"
	"github.com/trackfit/trackfit/pkg/models"
)

const (
	providerID  = "smtp"
	channelName = "E-mail"
	maxBodyLen  = 100 * 1024

	defaultFrom    = "TrackFit <noreply@localhost>"
	defaultTimeout = time.Second * 5
	idleTimeout    = time.Second * 10
)

// Config represents an SMTP server's credentials.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	AuthProtocol string        `json:"auth_protocol"`
	Username     string        `json:"username"`
	Password     string        `json:"password"`
	FromEmail    string        `json:"from_email"`
	Timeout      time.Duration `json:"timeout"`
	MaxConns     int           `json:"max_conns"`

	// none, STARTTLS or TLS.
	TLSType       string `json:"tls_type"`
	TLSSkipVerify bool   `json:"tls_skip_verify"`
}

// SMTP delivers OTP e-mails addressed to the user's name and e-mail.
type SMTP struct {
	from string
	pool *smtppool.Pool
}

// New validates the config and returns an SMTP Provider. Connections are
// made lazily on the first Push.
func New(cfg Config) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port < 1 {
		return nil, fmt.Errorf("invalid SMTP host '%s:%d'", cfg.Host, cfg.Port)
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = defaultFrom
	}
	if _, err := mail.ParseAddress(cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid from_email '%s': %v", cfg.FromEmail, err)
	}
	if cfg.Timeout < time.Second {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}

	auth, err := makeAuth(cfg)
	if err != nil {
		return nil, err
	}
	tlsCfg, ssl, err := makeTLS(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := smtppool.New(smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		IdleTimeout:     idleTimeout,
		PoolWaitTimeout: cfg.Timeout,
		Auth:            auth,
		TLSConfig:       tlsCfg,
		SSL:             ssl,
	})
	if err != nil {
		return nil, err
	}

	return &SMTP{from: cfg.FromEmail, pool: pool}, nil
}

// ID returns the Provider's ID.
func (s *SMTP) ID() string {
	return providerID
}

// ChannelName returns the e-mail Provider's name.
func (s *SMTP) ChannelName() string {
	return channelName
}

// ValidateAddress "validates" an e-mail address.
func (s *SMTP) ValidateAddress(to string) error {
	return models.ValidateEmail(to)
}

// Push sends the OTP e-mail to "Name <address>".
func (s *SMTP) Push(msg models.Message, subject string, body []byte) error {
	to := mail.Address{Name: strings.TrimSpace(msg.Name), Address: msg.To}

	return s.pool.Send(smtppool.Email{
		From:    s.from,
		To:      []string{to.String()},
		Subject: subject,
		HTML:    body,
	})
}

// MaxBodyLen returns the max permitted body size.
func (s *SMTP) MaxBodyLen() int {
	return maxBodyLen
}

// Close closes the SMTP connection pool.
func (s *SMTP) Close() {
	s.pool.Close()
}

func makeAuth(cfg Config) (smtp.Auth, error) {
	switch strings.ToLower(cfg.AuthProtocol) {
	case "", "none":
		return nil, nil
	case "login":
		return &smtppool.LoginAuth{Username: cfg.Username, Password: cfg.Password}, nil
	case "cram":
		return smtp.CRAMMD5Auth(cfg.Username, cfg.Password), nil
	case "plain":
		return smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host), nil
	}

	return nil, fmt.Errorf("unknown SMTP auth type '%s'", cfg.AuthProtocol)
}

// makeTLS returns the TLS config and whether the connection is SSL/TLS
// from the start (instead of STARTTLS).
func makeTLS(cfg Config) (*tls.Config, bool, error) {
	var ssl bool
	switch strings.ToUpper(cfg.TLSType) {
	case "NONE":
		return nil, false, nil
	case "", "STARTTLS":
	case "TLS":
		ssl = true
	default:
		return nil, false, fmt.Errorf("unknown SMTP tls_type '%s'", cfg.TLSType)
	}

	t := &tls.Config{ServerName: cfg.Host}
	if cfg.TLSSkipVerify {
		t.InsecureSkipVerify = true
	}
	return t, ssl, nil
}
