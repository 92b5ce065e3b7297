package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/trackfit/trackfit/internal/otp"
	"github.com/trackfit/trackfit/internal/store"
	"github.com/trackfit/trackfit/pkg/models"
)

const (
	// Max size of a JSON request body.
	maxBodySize = 16 * 1024

	msgOTPSent = "OTP sent to email"
)

type okResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type verifyResp struct {
	OK    bool        `json:"ok"`
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type userResp struct {
	OK   bool        `json:"ok"`
	User models.User `json:"user"`
}

type errResp struct {
	Error string `json:"error"`
}

type sendReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type verifyReq struct {
	Email string     `json:"email"`
	Code  flexString `json:"code"`
}

type pageTpl struct {
	Title string
	App   constants
}

// flexString is a string that also accepts JSON numbers, so that
// {"code": 123456}, {"code": 123456.0} and {"code": "123456"} are
// equivalent. Numbers are written in their shortest form and a zero
// number is treated as missing.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Float64()
	if err != nil {
		return err
	}

	if v == 0 {
		*f = ""
		return nil
	}
	*f = flexString(strconv.FormatFloat(v, 'f', -1, 64))
	return nil
}

// handleSendOTP issues an OTP for a name and e-mail.
func handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		req sendReq
	)

	if err := decodeJSON(w, r, &req); err != nil {
		sendErrorResponse(w, otp.ErrRequest.Message, http.StatusBadRequest)
		return
	}

	if err := app.otp.Issue(r.Context(), req.Name, req.Email); err != nil {
		sendOTPError(w, err)
		return
	}

	sendResponse(w, okResp{OK: true, Message: msgOTPSent})
}

// handleVerifyOTP checks a code and returns a session token.
func handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		req verifyReq
	)

	if err := decodeJSON(w, r, &req); err != nil {
		sendErrorResponse(w, otp.ErrRequest.Message, http.StatusBadRequest)
		return
	}

	out, err := app.otp.Verify(r.Context(), req.Email, string(req.Code))
	if err != nil {
		sendOTPError(w, err)
		return
	}

	sendResponse(w, verifyResp{OK: true, Token: out.Token, User: out.User})
}

// handleGetMe returns the identity of the bearer token's session.
func handleGetMe(w http.ResponseWriter, r *http.Request) {
	var (
		app  = r.Context().Value("app").(*App)
		sess = r.Context().Value("session").(models.Session)
	)

	app.lo.Debug("session lookup", "email", sess.Email)
	sendResponse(w, userResp{OK: true, User: sess.User()})
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
	)

	if err := app.store.Ping(r.Context()); err != nil {
		app.lo.Error("error pinging store", "error", err)
		sendErrorResponse(w, "Unable to reach store.", http.StatusServiceUnavailable)
		return
	}

	sendResponse(w, okResp{OK: true, Message: "OK"})
}

// handlePage returns a handler that renders a static page template.
func handlePage(tplName, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app := r.Context().Value("app").(*App)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := app.tpl.ExecuteTemplate(w, tplName, pageTpl{Title: title, App: app.constants}); err != nil {
			app.lo.Error("error rendering page", "page", tplName, "error", err)
		}
	}
}

// wrap is a middleware that wraps HTTP handlers and injects the "app" context.
func wrap(app *App, next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), "app", app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearer is an authentication middleware that resolves the session of the
// `Authorization: Bearer <token>` header and injects it into the context.
func bearer(app *App, next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, prefix) {
			sendErrorResponse(w, "Missing Bearer Authorization header.", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(h[len(prefix):])
		if token == "" {
			sendErrorResponse(w, "Missing Bearer Authorization header.", http.StatusUnauthorized)
			return
		}

		sess, err := app.otp.Session(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotExist) {
				sendErrorResponse(w, "Invalid session.", http.StatusUnauthorized)
				return
			}

			app.lo.Error("error checking session", "error", err)
			sendErrorResponse(w, "Error checking session.", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), "session", sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// decodeJSON decodes a size limited JSON request body into out.
func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(out)
}

// sendOTPError maps an error from the OTP service to an HTTP response.
func sendOTPError(w http.ResponseWriter, err error) {
	var e *otp.Error
	if !errors.As(err, &e) {
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError)
		return
	}

	code := http.StatusInternalServerError
	switch e.Kind {
	case otp.KindValidation, otp.KindRequest:
		code = http.StatusBadRequest
	case otp.KindNotFound:
		code = http.StatusNotFound
	case otp.KindExpired:
		code = http.StatusGone
	case otp.KindInvalidCode:
		code = http.StatusUnauthorized
	}

	sendErrorResponse(w, e.Message, code)
}

// sendResponse sends a JSON response.
func sendResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	out, err := json.Marshal(data)
	if err != nil {
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError)
		return
	}

	w.Write(out)
}

// sendErrorResponse sends a JSON error to the HTTP response.
func sendErrorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	out, _ := json.Marshal(errResp{Error: message})
	w.Write(out)
}
