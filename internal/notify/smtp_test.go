package notify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedMail struct {
	From string
	To   []string
	Data []byte
	TLS  bool
}

// testBackend 记录收到的邮件，并校验 PLAIN 认证
type testBackend struct {
	mu       sync.Mutex
	username string
	password string
	received []receivedMail
	rejectTo string
}

func (b *testBackend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &testSession{backend: b, conn: c}, nil
}

func (b *testBackend) messages() []receivedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]receivedMail(nil), b.received...)
}

type testSession struct {
	backend *testBackend
	conn    *gosmtp.Conn
	authed  bool
	current receivedMail
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *testSession) Mail(from string, _ *gosmtp.MailOptions) error {
	if !s.authed {
		return gosmtp.ErrAuthRequired
	}
	_, isTLS := s.conn.TLSConnectionState()
	s.current = receivedMail{From: from, TLS: isTLS}
	return nil
}

func (s *testSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if to == s.backend.rejectTo {
		return &gosmtp.SMTPError{Code: 550, EnhancedCode: gosmtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.current.To = append(s.current.To, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.Data = data

	s.backend.mu.Lock()
	s.backend.received = append(s.backend.received, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset()        { s.current = receivedMail{} }
func (s *testSession) Logout() error { return nil }

func startSMTPServer(t *testing.T, backend *testBackend) (string, int) {
	t.Helper()
	return serveSMTP(t, backend, nil)
}

// startTLSServer 启动声明 STARTTLS 的服务器，只允许加密后认证
func startTLSServer(t *testing.T, backend *testBackend) (string, int) {
	t.Helper()
	return serveSMTP(t, backend, selfSignedTLS(t))
}

func serveSMTP(t *testing.T, backend *testBackend, tlsConfig *tls.Config) (string, int) {
	t.Helper()

	server := gosmtp.NewServer(backend)
	server.Domain = "localhost"
	server.TLSConfig = tlsConfig
	server.AllowInsecureAuth = tlsConfig == nil
	server.ReadTimeout = 5 * time.Second
	server.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { server.Close() })

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	}
}

func testMessage() *Message {
	return &Message{
		From:    Address{Name: "Portfolio Contact Form", Email: "owner@example.com"},
		To:      Address{Email: "admin@example.com"},
		Subject: "New Contact: Ada wants to connect!",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
		Attachments: []Attachment{
			{FileName: "contact-database-2024-03-01.xlsx", ContentType: SpreadsheetContentType, Data: []byte("spreadsheet")},
		},
	}
}

func TestSMTPTransport_Send(t *testing.T) {
	backend := &testBackend{username: "owner@example.com", password: "secret"}
	host, port := startSMTPServer(t, backend)

	transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port, DisableStartTLS: true, Username: "owner@example.com", Password: "secret"})
	require.True(t, transport.Configured())

	require.NoError(t, transport.Verify(context.Background()))
	require.NoError(t, transport.Send(context.Background(), testMessage()))

	received := backend.messages()
	require.Len(t, received, 1)
	assert.Equal(t, "owner@example.com", received[0].From)
	assert.Equal(t, []string{"admin@example.com"}, received[0].To)

	parsed := parseMIME(t, received[0].Data)
	assert.Equal(t, "New Contact: Ada wants to connect!", parsed.subject)
	assert.Equal(t, "Hello", parsed.text)
	assert.Equal(t, "<p>Hello</p>", parsed.html)
	require.Len(t, parsed.attachments, 1)
	assert.Equal(t, []byte("spreadsheet"), parsed.attachments["contact-database-2024-03-01.xlsx"])
}

func TestSMTPTransport_StartTLS(t *testing.T) {
	backend := &testBackend{username: "owner@example.com", password: "secret"}
	host, port := startTLSServer(t, backend)

	transport := NewSMTPTransport(SMTPConfig{
		Host:               host,
		Port:               port,
		Username:           "owner@example.com",
		Password:           "secret",
		InsecureSkipVerify: true,
	})

	t.Run("升级后认证并投递", func(t *testing.T) {
		require.NoError(t, transport.Verify(context.Background()))
		require.NoError(t, transport.Send(context.Background(), testMessage()))

		received := backend.messages()
		require.Len(t, received, 1)
		assert.True(t, received[0].TLS)
		assert.Equal(t, []string{"admin@example.com"}, received[0].To)
	})

	t.Run("证书校验失败", func(t *testing.T) {
		strict := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Username: "owner@example.com", Password: "secret"})

		err := strict.Verify(context.Background())
		require.Error(t, err)
	})
}

func TestSMTPTransport_StartTLSUnsupported(t *testing.T) {
	backend := &testBackend{username: "u", password: "p"}
	host, port := startSMTPServer(t, backend)

	transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Username: "u", Password: "p"})

	err := transport.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp starttls")
	assert.Empty(t, backend.messages())
}

func TestSMTPTransport_BadCredentials(t *testing.T) {
	backend := &testBackend{username: "owner@example.com", password: "secret"}
	host, port := startSMTPServer(t, backend)

	transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port, DisableStartTLS: true, Username: "owner@example.com", Password: "wrong"})

	err := transport.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp auth")
	assert.Empty(t, backend.messages())
}

func TestSMTPTransport_RecipientRejected(t *testing.T) {
	backend := &testBackend{username: "u", password: "p", rejectTo: "admin@example.com"}
	host, port := startSMTPServer(t, backend)

	transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port, DisableStartTLS: true, Username: "u", Password: "p"})

	err := transport.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RCPT TO")
}

func TestSMTPTransport_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	transport := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Username: "u", Password: "p", Timeout: time.Second})

	err = transport.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp dial")
}

func TestSMTPTransport_Configured(t *testing.T) {
	assert.False(t, NewSMTPTransport(SMTPConfig{Username: "u"}).Configured())
	assert.False(t, NewSMTPTransport(SMTPConfig{Password: "p"}).Configured())
	assert.True(t, NewSMTPTransport(SMTPConfig{Username: "u", Password: "p"}).Configured())
}
