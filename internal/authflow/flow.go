// Package authflow is the client side of the OTP login: a two step state
// machine that requests a code for a name and e-mail, verifies the code,
// persists the resulting session and hands off to a redirect target.
// It's independent of any rendering layer. Renderers read Snapshots.
package authflow

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

// State is a step of the flow.
type State int

const (
	// CollectingIdentity is step 1: name and e-mail.
	CollectingIdentity State = iota
	// CollectingCode is step 2: the code sent to the e-mail.
	CollectingCode
	// Verified is terminal. The session is saved and the redirect is due.
	Verified
)

func (s State) String() string {
	switch s {
	case CollectingIdentity:
		return "collecting_identity"
	case CollectingCode:
		return "collecting_code"
	case Verified:
		return "verified"
	}
	return "unknown"
}

const (
	msgInvalidIdentity = "Please enter a valid name and email."
	msgInvalidCode     = "Please enter the 6-digit code."
	msgSendFailed      = "Failed to send OTP"
	msgVerifyFailed    = "Verification failed"
	msgSent            = "We sent a 6-digit code to your email. It expires in 10 minutes."
	msgVerified        = "Success! Redirecting..."

	codeLen = 6
)

var (
	// ErrBusy is returned when an action is attempted while another
	// network action is in flight.
	ErrBusy = errors.New("another action is in progress")

	// ErrResendDisabled is returned by Resend during the cooldown.
	ErrResendDisabled = errors.New("resend is disabled during cooldown")

	// ErrInvalidTransition is returned for actions the current state
	// doesn't permit.
	ErrInvalidTransition = errors.New("action not permitted in the current state")

	// ErrClosed is returned for actions on a closed flow.
	ErrClosed = errors.New("flow is closed")

	reEmail = regexp.MustCompile(`.+@.+\..+`)
	reCode  = regexp.MustCompile(`^[0-9]{6}$`)
)

// Navigator moves the client to a target, eg: a page path.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(target string)

// Navigate calls f(target).
func (f NavigatorFunc) Navigate(target string) {
	f(target)
}

// Opt holds the flow's options.
type Opt struct {
	// Redirect is where the client is sent after verification.
	Redirect string

	// Cooldown is how long Resend stays disabled after a send. It counts
	// down in steps of Tick.
	Cooldown time.Duration
	Tick     time.Duration

	// RedirectDelay gives the success message time to render.
	// Negative values redirect immediately.
	RedirectDelay time.Duration

	// OnChange, if set, is called with a Snapshot after every change.
	// It's never called with the flow's lock held.
	OnChange func(Snapshot)
}

// Snapshot is a point-in-time copy of the flow for rendering.
// At most one of Error and Info is set.
type Snapshot struct {
	State    State
	Name     string
	Email    string
	Code     string
	Cooldown int
	Loading  bool
	Error    string
	Info     string
}

// Flow is the OTP login state machine. It's safe for concurrent use.
type Flow struct {
	opt     Opt
	api     API
	storage Storage
	nav     Navigator

	mu       sync.Mutex
	state    State
	name     string
	email    string
	code     string
	cooldown int
	loading  bool
	errMsg   string
	info     string
	closed   bool

	// stopCooldown is non-nil while the cooldown goroutine runs.
	stopCooldown chan struct{}
	redirect     *time.Timer
	wg           sync.WaitGroup
}

// New returns a Flow in the CollectingIdentity state.
func New(o Opt, api API, s Storage, nav Navigator) *Flow {
	if o.Redirect == "" {
		o.Redirect = "/tracker"
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.RedirectDelay == 0 {
		o.RedirectDelay = 400 * time.Millisecond
	} else if o.RedirectDelay < 0 {
		o.RedirectDelay = 0
	}

	return &Flow{
		opt:     o,
		api:     api,
		storage: s,
		nav:     nav,
	}
}

// Snapshot returns the current state of the flow.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

// SetName sets the name field.
func (f *Flow) SetName(v string) {
	f.update(func() { f.name = v })
}

// SetEmail sets the e-mail field.
func (f *Flow) SetEmail(v string) {
	f.update(func() { f.email = v })
}

// SetCode sets the code field, keeping only digits, up to 6 of them.
func (f *Flow) SetCode(v string) {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' && b.Len() < codeLen {
			b.WriteRune(r)
		}
	}
	f.update(func() { f.code = b.String() })
}

// Send requests a code for the entered name and e-mail. It's permitted
// only in CollectingIdentity. On success, the flow moves to CollectingCode
// and the resend cooldown starts. Guard and network failures leave the
// state and fields untouched.
func (f *Flow) Send(ctx context.Context) error {
	f.mu.Lock()
	if err := f.begin(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.state != CollectingIdentity {
		f.mu.Unlock()
		return ErrInvalidTransition
	}

	return f.send(ctx)
}

// Resend requests a new code in CollectingCode. It's disabled while the
// cooldown is running.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if err := f.begin(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.state != CollectingCode {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	if f.cooldown > 0 {
		f.mu.Unlock()
		return ErrResendDisabled
	}

	return f.send(ctx)
}

// send issues a code for the current fields. The lock must be held and
// the guards checked. It's released before the API call.
func (f *Flow) send(ctx context.Context) error {
	f.errMsg = ""
	f.info = ""

	name := strings.TrimSpace(f.name)
	email := strings.TrimSpace(f.email)
	if len([]rune(name)) < 2 || !reEmail.MatchString(email) {
		return f.fail(errors.New(msgInvalidIdentity))
	}
	f.loading = true
	f.mu.Unlock()
	f.notify()

	_, err := f.api.SendOTP(ctx, name, email)

	f.mu.Lock()
	f.loading = false
	if err != nil {
		return f.fail(withFallback(err, msgSendFailed))
	}

	f.info = msgSent
	f.state = CollectingCode
	f.startCooldown()
	f.mu.Unlock()
	f.notify()

	return nil
}

// Verify exchanges the entered code for a session. On success, the session
// is saved to storage, the flow becomes Verified and the navigator is sent
// to the redirect target after RedirectDelay.
func (f *Flow) Verify(ctx context.Context) error {
	f.mu.Lock()
	if err := f.begin(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.state != CollectingCode {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	f.errMsg = ""
	f.info = ""

	code := strings.TrimSpace(f.code)
	if !reCode.MatchString(code) {
		return f.fail(errors.New(msgInvalidCode))
	}
	email := strings.TrimSpace(f.email)
	f.loading = true
	f.mu.Unlock()
	f.notify()

	sess, err := f.api.VerifyOTP(ctx, email, code)
	if err == nil {
		err = SaveSession(f.storage, sess)
	}

	f.mu.Lock()
	f.loading = false
	if err != nil {
		return f.fail(withFallback(err, msgVerifyFailed))
	}

	f.info = msgVerified
	f.state = Verified
	f.stopCooldownLocked()
	if !f.closed {
		target := f.opt.Redirect
		f.redirect = time.AfterFunc(f.opt.RedirectDelay, func() {
			f.nav.Navigate(target)
		})
	}
	f.mu.Unlock()
	f.notify()

	return nil
}

// Back returns to CollectingIdentity to change the e-mail. The cooldown
// keeps running and the already issued code stays valid on the server.
func (f *Flow) Back() error {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return ErrBusy
	}
	if f.state != CollectingCode {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	f.state = CollectingIdentity
	f.mu.Unlock()
	f.notify()

	return nil
}

// Close stops the cooldown timer and any pending redirect and waits for
// the timer goroutine to exit. The flow can't be used after this.
func (f *Flow) Close() {
	f.mu.Lock()
	f.closed = true
	f.stopCooldownLocked()
	if f.redirect != nil {
		f.redirect.Stop()
		f.redirect = nil
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// begin checks that a network action can start. The lock must be held.
func (f *Flow) begin() error {
	if f.closed {
		return ErrClosed
	}
	if f.loading {
		return ErrBusy
	}
	return nil
}

// fail records err as the visible error, releases the lock and notifies.
// The lock must be held.
func (f *Flow) fail(err error) error {
	f.errMsg = err.Error()
	f.info = ""
	f.mu.Unlock()
	f.notify()
	return err
}

// startCooldown (re)starts the resend cooldown. The lock must be held.
func (f *Flow) startCooldown() {
	f.cooldown = int(f.opt.Cooldown / f.opt.Tick)
	if f.cooldown < 1 {
		f.cooldown = 1
	}

	// An already running goroutine picks up the reset counter.
	if f.stopCooldown != nil || f.closed {
		return
	}

	stop := make(chan struct{})
	f.stopCooldown = stop
	f.wg.Add(1)
	go f.runCooldown(stop)
}

func (f *Flow) stopCooldownLocked() {
	if f.stopCooldown != nil {
		close(f.stopCooldown)
		f.stopCooldown = nil
	}
}

// runCooldown decrements the cooldown every Tick and exits when it
// reaches zero or when stop is closed.
func (f *Flow) runCooldown(stop chan struct{}) {
	defer f.wg.Done()

	t := time.NewTicker(f.opt.Tick)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		f.mu.Lock()
		// Stopped while waiting on the lock.
		if f.stopCooldown != stop {
			f.mu.Unlock()
			return
		}

		if f.cooldown > 0 {
			f.cooldown--
		}
		done := f.cooldown == 0
		if done {
			f.stopCooldown = nil
		}
		f.mu.Unlock()
		f.notify()

		if done {
			return
		}
	}
}

func (f *Flow) update(fn func()) {
	f.mu.Lock()
	fn()
	f.mu.Unlock()
	f.notify()
}

func (f *Flow) notify() {
	if f.opt.OnChange == nil {
		return
	}
	f.opt.OnChange(f.Snapshot())
}

func (f *Flow) snapshot() Snapshot {
	return Snapshot{
		State:    f.state,
		Name:     f.name,
		Email:    f.email,
		Code:     f.code,
		Cooldown: f.cooldown,
		Loading:  f.loading,
		Error:    f.errMsg,
		Info:     f.info,
	}
}

// withFallback substitutes msg for errors that carry no message.
func withFallback(err error, msg string) error {
	if strings.TrimSpace(err.Error()) == "" {
		return errors.New(msg)
	}
	return err
}
