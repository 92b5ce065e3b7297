// Package otp issues one-time codes against e-mail addresses and
// verifies them, minting a session token on success.
package otp

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html/template"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/trackfit/trackfit/internal/clock"
	"github.com/trackfit/trackfit/internal/store"
	"github.com/trackfit/trackfit/pkg/models"
	"github.com/zerodha/logf"
)

const (
	// DefaultTTL is the validity window of an issued code.
	DefaultTTL = 10 * time.Minute

	codeMin = 100000
	codeMax = 999999
)

// Opt holds the Service's options.
type Opt struct {
	AppName string
	TTL     time.Duration
}

// Channel is a delivery Provider with its compiled message templates.
type Channel struct {
	Provider models.Provider
	Subject  *template.Template
	Body     *template.Template
}

// Result is the outcome of a successful verification.
type Result struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Service issues and verifies OTPs.
type Service struct {
	opt      Opt
	store    store.Store
	channels []Channel
	clock    clock.Clock
	validate *validator.Validate
	lo       logf.Logger
}

type issueReq struct {
	Name  string `validate:"required"`
	Email string `validate:"required"`
}

type verifyReq struct {
	Email string `validate:"required"`
	Code  string `validate:"required"`
}

type pushTpl struct {
	AppName   string
	To        string
	Name      string
	OTP       string
	TTL       time.Duration
	ExpiresAt time.Time
}

// New returns a new Service. Codes are delivered to every given channel.
func New(o Opt, st store.Store, channels []Channel, c clock.Clock, lo logf.Logger) *Service {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}

	return &Service{
		opt:      o,
		store:    st,
		channels: channels,
		clock:    c,
		validate: validator.New(),
		lo:       lo,
	}
}

// Issue generates a code for the e-mail, stores it (replacing any pending
// one) and delivers it. The code is never returned to the caller.
func (s *Service) Issue(ctx context.Context, name, email string) error {
	if err := s.validate.Struct(issueReq{Name: name, Email: email}); err != nil {
		return newErr(KindValidation, "Name and email are required")
	}

	key := strings.ToLower(email)
	for _, c := range s.channels {
		if err := c.Provider.ValidateAddress(key); err != nil {
			return newErr(KindValidation, fmt.Sprintf("Invalid email: %v", err))
		}
	}

	code, err := generateCode()
	if err != nil {
		s.lo.Error("error generating OTP", "error", err)
		return newErr(KindInternal, "Error generating OTP.")
	}

	msg := models.Message{
		To:        key,
		Name:      name,
		OTP:       code,
		TTL:       s.opt.TTL,
		ExpiresAt: s.clock.Now().Add(s.opt.TTL),
	}

	// Render every channel's message before the pending OTP is replaced so
	// that a bad template doesn't invalidate a code that's already out.
	outs := make([]rendered, len(s.channels))
	for i, c := range s.channels {
		out, err := s.render(msg, c)
		if err != nil {
			s.lo.Error("error rendering OTP message", "error", err, "provider", c.Provider.ID())
			return newErr(KindInternal, "Error sending OTP.")
		}
		outs[i] = out
	}

	otp := models.PendingOTP{
		Code:      code,
		Name:      name,
		ExpiresAt: msg.ExpiresAt,
	}
	if err := s.store.SetOTP(ctx, key, otp); err != nil {
		s.lo.Error("error setting OTP", "error", err)
		return newErr(KindInternal, "Error setting OTP.")
	}

	// A delivery failure here leaves the new code pending and possibly
	// delivered by the channels before the failed one.
	for i, c := range s.channels {
		s.lo.Debug("sending otp", "to", msg.To, "provider", c.Provider.ID())
		if err := c.Provider.Push(msg, outs[i].subject, outs[i].body); err != nil {
			s.lo.Error("error sending OTP", "error", err, "provider", c.Provider.ID())
			return newErr(KindInternal, "Error sending OTP.")
		}
	}

	return nil
}

// Verify checks a code against the pending OTP for the e-mail. Expired
// OTPs are deleted when they're observed here. A wrong code leaves the
// pending OTP in place. On success, the OTP is consumed and a session
// is recorded against a new token.
func (s *Service) Verify(ctx context.Context, email, code string) (Result, error) {
	if err := s.validate.Struct(verifyReq{Email: email, Code: code}); err != nil {
		return Result{}, newErr(KindValidation, "Email and code are required")
	}

	key := strings.ToLower(email)
	otp, err := s.store.GetOTP(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return Result{}, ErrNotFound
		}
		s.lo.Error("error checking OTP", "error", err)
		return Result{}, newErr(KindInternal, "Error checking OTP.")
	}

	now := s.clock.Now()
	if otp.Expired(now) {
		if err := s.store.DeleteOTP(ctx, key); err != nil {
			s.lo.Error("error deleting expired OTP", "error", err)
		}
		return Result{}, ErrExpired
	}

	if otp.Code != code {
		s.lo.Debug("incorrect OTP", "email", key)
		return Result{}, ErrInvalidCode
	}

	token, err := generateToken()
	if err != nil {
		s.lo.Error("error generating session token", "error", err)
		return Result{}, newErr(KindInternal, "Error creating session.")
	}

	sess := models.Session{Email: key, Name: otp.Name, CreatedAt: now}
	if err := s.store.SetSession(ctx, token, sess); err != nil {
		s.lo.Error("error setting session", "error", err)
		return Result{}, newErr(KindInternal, "Error creating session.")
	}

	if err := s.store.DeleteOTP(ctx, key); err != nil {
		s.lo.Error("error deleting OTP", "error", err)
	}

	s.lo.Info("otp verified", "email", key)
	return Result{Token: token, User: sess.User()}, nil
}

// Session returns the session recorded against a token.
func (s *Service) Session(ctx context.Context, token string) (models.Session, error) {
	return s.store.GetSession(ctx, token)
}

// rendered is a channel's compiled subject and body.
type rendered struct {
	subject string
	body    []byte
}

// render compiles a channel's message templates and checks the body
// against the provider's limit.
func (s *Service) render(msg models.Message, c Channel) (rendered, error) {
	var (
		subj = &bytes.Buffer{}
		out  = &bytes.Buffer{}

		data = pushTpl{
			AppName:   s.opt.AppName,
			To:        msg.To,
			Name:      msg.Name,
			OTP:       msg.OTP,
			TTL:       msg.TTL,
			ExpiresAt: msg.ExpiresAt,
		}
	)

	if c.Subject != nil {
		if err := c.Subject.Execute(subj, data); err != nil {
			return rendered{}, err
		}
	}
	if c.Body != nil {
		if err := c.Body.Execute(out, data); err != nil {
			return rendered{}, err
		}
	}

	if n := c.Provider.MaxBodyLen(); n > 0 && out.Len() > n {
		return rendered{}, fmt.Errorf("message body exceeds %d bytes", n)
	}

	return rendered{subject: subj.String(), body: out.Bytes()}, nil
}

// generateCode returns a uniformly random code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// generateToken returns a random (v4) UUID. There's no fallback: if the
// system's secure random source fails, no token is minted.
func generateToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
