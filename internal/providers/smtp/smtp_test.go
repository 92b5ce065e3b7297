package smtp

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackfit/trackfit/pkg/models"
)

// fakeServer is a minimal SMTP server that accepts every command and
// records envelopes and message data.
type fakeServer struct {
	ln net.Listener

	mu    sync.Mutex
	rcpts []string
	data  []string
}

func newFakeServer(t *testing.T) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) port(t *testing.T) int {
	_, p, err := net.SplitHostPort(s.ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(p)
	return port
}

func (s *fakeServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(c)
	}
}

func (s *fakeServer) handle(c net.Conn) {
	defer c.Close()

	var (
		r = bufio.NewReader(c)
		w = bufio.NewWriter(c)
	)
	reply := func(l string) {
		w.WriteString(l + "\r\n")
		w.Flush()
	}

	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-localhost")
			reply("250 HELP")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, line[len("RCPT TO:"):])
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(l, "\r\n") == "." {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = append(s.data, b.String())
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *fakeServer) received() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rcpts...), append([]string(nil), s.data...)
}

func TestNew(t *testing.T) {
	base := Config{Host: "127.0.0.1", Port: 25, TLSType: "none"}

	s, err := New(base)
	require.NoError(t, err)
	s.Close()

	for name, c := range map[string]Config{
		"missing host": {Port: 25},
		"missing port": {Host: "127.0.0.1"},
		"auth":         {Host: "127.0.0.1", Port: 25, AuthProtocol: "magic"},
		"tls":          {Host: "127.0.0.1", Port: 25, TLSType: "SSLv2"},
		"from":         {Host: "127.0.0.1", Port: 25, FromEmail: "not an address"},
	} {
		_, err := New(c)
		assert.Error(t, err, "invalid %s accepted", name)
	}
}

func TestMakeAuthAndTLS(t *testing.T) {
	for _, p := range []string{"", "none", "login", "LOGIN", "cram", "plain"} {
		_, err := makeAuth(Config{Host: "mail.example.com", AuthProtocol: p})
		assert.NoError(t, err, "auth protocol %q rejected", p)
	}

	tc, ssl, err := makeTLS(Config{Host: "mail.example.com"})
	require.NoError(t, err)
	assert.False(t, ssl, "STARTTLS is the default")
	assert.Equal(t, "mail.example.com", tc.ServerName)

	tc, ssl, err = makeTLS(Config{Host: "mail.example.com", TLSType: "TLS", TLSSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, ssl)
	assert.True(t, tc.InsecureSkipVerify)

	tc, _, err = makeTLS(Config{TLSType: "none"})
	require.NoError(t, err)
	assert.Nil(t, tc)
}

func TestValidateAddress(t *testing.T) {
	s, err := New(Config{Host: "127.0.0.1", Port: 25, TLSType: "none"})
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.ValidateAddress("jane@example.com"))
	for _, a := range []string{"", "jane", "jane@example", "jane doe@example.com", strings.Repeat("a", 250) + "@example.com"} {
		assert.Error(t, s.ValidateAddress(a), "accepted %q", a)
	}
}

func TestPush(t *testing.T) {
	srv := newFakeServer(t)

	s, err := New(Config{
		Host:      "127.0.0.1",
		Port:      srv.port(t),
		TLSType:   "none",
		FromEmail: "TrackFit <noreply@trackfit.app>",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	err = s.Push(models.Message{
		To:   "jane@example.com",
		Name: "Jane Doe",
		OTP:  "123456",
	}, "Your code", []byte("code 123456"))
	require.NoError(t, err, "push failed")
	s.Close()

	rcpts, data := srv.received()
	require.Len(t, rcpts, 1)
	assert.Contains(t, rcpts[0], "<jane@example.com>")

	require.Len(t, data, 1)
	assert.Contains(t, data[0], `"Jane Doe" <jane@example.com>`, "recipient name missing from the To header")
	assert.Contains(t, data[0], "Subject: Your code")
	assert.Contains(t, data[0], "code 123456")
}
