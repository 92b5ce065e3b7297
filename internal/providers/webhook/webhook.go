// webhook is a Provider that posts OTP deliveries to a URL, leaving
// the actual delivery to an upstream service (a mailer, a chat bot etc.)
package webhook

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trackfit/trackfit/pkg/models"
)

const providerID = "webhook"

// Webhook is the webhook Provider.
type Webhook struct {
	cfg        Config
	authHeader string
	http       *http.Client
}

// Payload is posted to the upstream URL.
type Payload struct {
	To        string    `json:"to"`
	Name      string    `json:"name"`
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
}

// Config contains the webhook provider configuration.
type Config struct {
	URL         string `json:"url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ChannelName string `json:"channel_name"`
	MaxBodyLen  int    `json:"max_body_len"`

	Timeout  time.Duration `json:"timeout"`
	MaxConns int           `json:"max_conns"`
}

// New returns a webhook Provider.
func New(cfg Config) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if cfg.ChannelName == "" {
		cfg.ChannelName = "E-mail"
	}

	// Initialize the HTTP client.
	if cfg.Timeout.Seconds() < 1 {
		cfg.Timeout = time.Second * 3
	}
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}

	authHeader := ""
	if cfg.Username != "" && cfg.Password != "" {
		authHeader = fmt.Sprintf("Basic %s", base64.StdEncoding.EncodeToString(
			[]byte(cfg.Username+":"+cfg.Password)))
	}

	return &Webhook{
		cfg:        cfg,
		authHeader: authHeader,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   cfg.MaxConns,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}, nil
}

// ID returns the Provider's ID.
func (w *Webhook) ID() string {
	return providerID
}

// ChannelName returns the Provider's name.
func (w *Webhook) ChannelName() string {
	return w.cfg.ChannelName
}

// ValidateAddress accepts any address. The upstream validates it.
func (w *Webhook) ValidateAddress(to string) error {
	return nil
}

// Push posts the message to the webhook.
func (w *Webhook) Push(msg models.Message, subject string, body []byte) error {
	p := Payload{
		To:        msg.To,
		Name:      msg.Name,
		OTP:       msg.OTP,
		ExpiresAt: msg.ExpiresAt,
		Subject:   subject,
		Body:      string(body),
	}

	b, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, w.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("User-Agent", "trackfit")
	req.Header.Add("Content-Type", "application/json")

	// Optional BasicAuth.
	if w.authHeader != "" {
		req.Header.Set("Authorization", w.authHeader)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		// Drain and close the body to let the Transport reuse the connection
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook responded with %d", resp.StatusCode)
	}

	return nil
}

// MaxBodyLen returns the max permitted body size.
func (w *Webhook) MaxBodyLen() int {
	return w.cfg.MaxBodyLen
}
