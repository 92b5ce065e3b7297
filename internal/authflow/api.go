package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trackfit/trackfit/pkg/models"
)

const (
	uriSend   = "/api/otp/send"
	uriVerify = "/api/otp/verify"
)

// Session is the token and identity returned on a successful verification.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// API is the server side of the flow.
type API interface {
	// SendOTP requests a code for the e-mail. It returns the server's
	// acknowledgement message.
	SendOTP(ctx context.Context, name, email string) (string, error)

	// VerifyOTP exchanges a code for a session.
	VerifyOTP(ctx context.Context, email, code string) (Session, error)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client is an HTTP implementation of API.
type Client struct {
	rootURL string
	http    *http.Client
}

type apiResp struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

// NewClient returns a Client for the server at rootURL.
func NewClient(rootURL string, timeout time.Duration) *Client {
	if timeout.Seconds() < 1 {
		timeout = time.Second * 10
	}

	return &Client{
		rootURL: strings.TrimRight(rootURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SendOTP requests a code for the e-mail.
func (c *Client) SendOTP(ctx context.Context, name, email string) (string, error) {
	var out apiResp
	if err := c.post(ctx, uriSend, map[string]string{"name": name, "email": email}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// VerifyOTP exchanges a code for a session.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (Session, error) {
	var out apiResp
	if err := c.post(ctx, uriVerify, map[string]string{"email": email, "code": code}, &out); err != nil {
		return Session{}, err
	}
	return Session{Token: out.Token, User: out.User}, nil
}

func (c *Client) post(ctx context.Context, uri string, body interface{}, out *apiResp) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	// An undecodable body on an error response still yields an APIError.
	decErr := json.NewDecoder(resp.Body).Decode(out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: out.Error}
	}
	if decErr != nil {
		return fmt.Errorf("error decoding response: %v", decErr)
	}
	return nil
}
